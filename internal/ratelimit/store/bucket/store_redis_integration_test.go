//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"certverify/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisBucketStore
	ctx    context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	rc := containers.GetManager().GetRedis(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: rc.Addr})
	s.store = NewRedisBucketStore(s.client)
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) TearDownSuite() {
	_ = s.client.Close()
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())
}

func (s *RedisBucketStoreSuite) TestAllowUntilLimit() {
	for i := range 3 {
		result, err := s.store.Allow(s.ctx, "rl:sub:alice", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(3-(i+1), result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, "rl:sub:alice", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)

	ttl, err := s.client.PTTL(s.ctx, "rl:sub:alice").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
}

func (s *RedisBucketStoreSuite) TestWindowExpires() {
	_, err := s.store.Allow(s.ctx, "rl:ip:10.0.0.1", 1, 200*time.Millisecond)
	s.Require().NoError(err)

	result, err := s.store.Allow(s.ctx, "rl:ip:10.0.0.1", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.False(result.Allowed)

	time.Sleep(250 * time.Millisecond)
	result, err = s.store.Allow(s.ctx, "rl:ip:10.0.0.1", 1, 200*time.Millisecond)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
