// Package notify contains the notification sinks used by the dispatcher.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// LogNotifier writes notifications to the log. Links carry live tokens, so
// they are only included when IncludeLinks is set (local development).
type LogNotifier struct {
	log          zerolog.Logger
	IncludeLinks bool
}

func NewLogNotifier(log zerolog.Logger, includeLinks bool) *LogNotifier {
	return &LogNotifier{log: log, IncludeLinks: includeLinks}
}

func (n *LogNotifier) Notify(_ context.Context, msg domain.Notification) error {
	ev := n.log.Info().
		Str("kind", string(msg.Kind)).
		Str("identity_id", msg.IdentityID).
		Str("email", msg.Email)
	if n.IncludeLinks && msg.Link != "" {
		ev = ev.Str("link", msg.Link)
	}
	ev.Msg("notification")
	return nil
}
