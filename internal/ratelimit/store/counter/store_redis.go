package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quotagate/internal/ratelimit/models"
)

// allowScript implements an atomic sliding window consume over a sorted set:
// prune entries older than the window, admit if under the limit, and report
// the reset time derived from the oldest surviving entry. Running it as a
// Lua script keeps check and increment a single round trip, so concurrent
// requests for one key cannot race between them.
//
// KEYS[1] counter key
// ARGV[1] now (unix milliseconds)
// ARGV[2] window (milliseconds)
// ARGV[3] limit
// ARGV[4] unique member for this attempt
//
// Returns {allowed, used, resetAtMillis}.
var allowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - window)
local used = redis.call('ZCARD', KEYS[1])

local allowed = 0
if used < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	used = used + 1
	allowed = 1
end

local reset = now + window
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end

return {allowed, used, reset}
`)

// RedisStore implements CounterStore on Redis sorted sets, suitable for
// multi-instance deployments where all replicas must share one window.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedis creates a Redis-backed counter store. The prefix namespaces all
// keys written by this store; pass distinct prefixes to isolate limiters.
func NewRedis(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Allow atomically consumes one slot for key if the sliding window has room.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := time.Now()
	member := uuid.NewString()

	raw, err := allowScript.Run(ctx, s.client, []string{s.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis sliding window consume: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("unexpected script result length: got %d, want 3", len(raw))
	}

	allowed, ok := raw[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for allowed: %T", raw[0])
	}
	used, ok := raw[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for used: %T", raw[1])
	}
	resetMillis, ok := raw[2].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected type for reset: %T", raw[2])
	}

	remaining := limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return &models.Result{
		Allowed:   allowed == 1,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(resetMillis),
	}, nil
}

// Reset clears the counter for a key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

// Count returns the current request count within the window. Entries past
// the window but not yet pruned are included; the next Allow prunes them.
func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.client.ZCard(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("count counter: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}
