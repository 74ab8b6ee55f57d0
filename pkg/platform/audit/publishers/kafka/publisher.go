// Package kafka publishes audit events as JSON records keyed by document id,
// so all events of one credential land on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"certverify/internal/platform/kafka/producer"
	audit "certverify/pkg/platform/audit"
)

const DefaultTopic = "certverify.verifications"

// Producer is the part of producer.Producer the publisher needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

type Publisher struct {
	producer Producer
	topic    string
}

func New(p Producer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: p, topic: topic}
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event.Normalize(time.Now())
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := event.DocumentID
	if key == "" {
		key = event.ID.String()
	}
	return p.producer.Produce(ctx, &producer.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"action":   string(event.Action),
			"severity": string(event.Severity),
		},
	})
}
