package counterstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the counter store against a shared Redis instance.
//
// The increment and expiry are batched into one pipeline round trip. The TTL
// is applied with NX semantics so only the first increment of a window sets
// the expiry; later increments inherit it.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Increment atomically adds 1 to the counter for key.
// A non-positive TTL leaves the key without expiry (used for monotonic
// cache-invalidation counters).
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	var pttl *redis.DurationCmd
	if ttl > 0 {
		pipe.ExpireNX(ctx, key, ttl)
		pttl = pipe.PTTL(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("counterstore: increment %q: %w", key, err)
	}

	count := incr.Val()
	var expiresAt time.Time
	if pttl != nil {
		if remaining := pttl.Val(); remaining > 0 {
			expiresAt = time.Now().Add(remaining)
		}
	}
	return count, expiresAt, nil
}

// Ping verifies connectivity to Redis. Used by health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("counterstore: ping: %w", err)
	}
	return nil
}
