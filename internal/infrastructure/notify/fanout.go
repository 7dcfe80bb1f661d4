package notify

import (
	"context"
	"errors"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

// Fanout delivers to every sink and joins their errors. One failing sink
// does not stop the others.
type Fanout []ports.Notifier

func (f Fanout) Notify(ctx context.Context, msg domain.Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
