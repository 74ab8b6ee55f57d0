// Package kafka holds the broker-side setup shared by publishers.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes a topic the service publishes to.
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// EnsureTopics creates the missing topics. Existing topics are left as they
// are.
func EnsureTopics(ctx context.Context, client *kgo.Client, specs ...TopicSpec) error {
	admin := kadm.NewClient(client)
	for _, spec := range specs {
		resp, err := admin.CreateTopic(ctx, spec.Partitions, spec.ReplicationFactor, spec.Configs, spec.Name)
		if err != nil {
			return fmt.Errorf("create topic %s: %w", spec.Name, err)
		}
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", spec.Name, resp.Err)
		}
	}
	return nil
}
