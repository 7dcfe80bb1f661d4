package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThrottle(t *testing.T) (*Throttle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewThrottle(client), mr
}

func TestThrottle_AllowsUpToLimit(t *testing.T) {
	th, _ := newTestThrottle(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := th.Allow(ctx, "forgot:a@example.com", 3, time.Minute)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	ok, err := th.Allow(ctx, "forgot:a@example.com", 3, time.Minute)
	if err != nil {
		t.Fatalf("attempt 4: %v", err)
	}
	if ok {
		t.Fatalf("attempt 4 should be throttled")
	}
}

func TestThrottle_WindowExpires(t *testing.T) {
	th, mr := newTestThrottle(t)
	ctx := context.Background()

	_, _ = th.Allow(ctx, "k", 1, time.Minute)
	if ok, _ := th.Allow(ctx, "k", 1, time.Minute); ok {
		t.Fatalf("second attempt in window should be throttled")
	}
	if ttl := mr.TTL("throttle:k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window TTL to be set, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := th.Allow(ctx, "k", 1, time.Minute); !ok {
		t.Fatalf("attempt after window should be allowed")
	}
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	th, _ := newTestThrottle(t)
	ctx := context.Background()

	_, _ = th.Allow(ctx, "a", 1, time.Minute)
	if ok, _ := th.Allow(ctx, "b", 1, time.Minute); !ok {
		t.Fatalf("different keys must not share a counter")
	}
}

func TestThrottle_ErrorWhenUnavailable(t *testing.T) {
	th, mr := newTestThrottle(t)
	mr.Close()
	if _, err := th.Allow(context.Background(), "k", 1, time.Minute); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
