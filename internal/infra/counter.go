package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IncrWindow increments a fixed-window counter and returns the new count.
// A counter left without a TTL, for example after a failed EXPIRE, gets one
// on its next hit, so no key can outlive its window for good.
func IncrWindow(ctx context.Context, cache *redis.Client, key string, window time.Duration) (int64, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	// TTL reports -1 for a key without expiry.
	if ttl.Val() < 0 {
		if err := cache.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return incr.Val(), nil
}
