package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle is a fixed-window attempt counter.
// Key format: throttle:<key>
type Throttle struct {
	client redis.Cmdable
}

func NewThrottle(client redis.Cmdable) *Throttle {
	return &Throttle{client: client}
}

// Allow counts one attempt under key and reports whether the count is still
// within limit for the current window. The window starts at the first attempt.
func (t *Throttle) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := "throttle:" + key

	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("throttle %s: %w", key, err)
	}
	// A negative TTL means the key has no expiry yet: first attempt of the
	// window, or a previous expire that never landed.
	if ttl.Val() < 0 {
		if err := t.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("throttle %s: %w", key, err)
		}
	}
	return incr.Val() <= int64(limit), nil
}
