package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"certverify/internal/ratelimit/models"
)

// slidingWindowScript trims the window, admits the request when it fits and
// returns {allowed, count, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisBucketStore shares sliding windows across instances through sorted
// sets, one per key.
type RedisBucketStore struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisBucketStore(client redis.Scripter) *RedisBucketStore {
	return &RedisBucketStore{client: client, now: time.Now}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	vals, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("rate limit check for %s: unexpected reply %v", key, vals)
	}

	result := &models.RateLimitResult{
		Allowed: vals[0] == 1,
		Limit:   limit,
		ResetAt: time.UnixMilli(vals[2]),
	}
	if result.Allowed {
		result.Remaining = limit - int(vals[1])
	} else {
		result.RetryAfter = models.RetryAfterSeconds(now, result.ResetAt)
	}
	return result, nil
}
