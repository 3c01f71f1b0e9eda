package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureCounter implements retry.FailureCounter on a single Redis key so
// every process talking to the same API shares one adaptive delay.
type FailureCounter struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewFailureCounter creates a counter for scope (usually the model name).
func NewFailureCounter(client *Client, cfg Config, scope string) *FailureCounter {
	return &FailureCounter{
		rdb: client.rdb,
		key: failuresKey(cfg.KeyPrefix, scope),
		ttl: cfg.TTL,
	}
}

// Load returns the current count; a missing key counts as zero.
func (f *FailureCounter) Load(ctx context.Context) (int, error) {
	val, err := f.rdb.Get(ctx, f.key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get failed: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", val, err)
	}
	return n, nil
}

// Increment atomically adds one and refreshes the TTL.
func (f *FailureCounter) Increment(ctx context.Context) (int, error) {
	pipe := f.rdb.TxPipeline()
	incr := pipe.Incr(ctx, f.key)
	if f.ttl > 0 {
		pipe.Expire(ctx, f.key, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr failed: %w", err)
	}
	return int(incr.Val()), nil
}

// Reset clears the counter.
func (f *FailureCounter) Reset(ctx context.Context) error {
	if err := f.rdb.Del(ctx, f.key).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}
