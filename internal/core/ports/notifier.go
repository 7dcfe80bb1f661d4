package ports

import (
	"context"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// Notifier delivers a notification. Implementations may block; callers
// that must not block go through the dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// NotificationQueue accepts notifications for asynchronous delivery.
type NotificationQueue interface {
	Enqueue(n domain.Notification)
}

// Throttle reports whether another attempt under key is allowed within window.
type Throttle interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
