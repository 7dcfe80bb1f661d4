package ports

import (
	"context"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

type AccessOutcome string

const (
	AccessAllow  AccessOutcome = "allow"
	AccessLogin  AccessOutcome = "login"
	AccessLapsed AccessOutcome = "lapsed"
)

// AccessDecision carries the freshly loaded identity when access is allowed.
type AccessDecision struct {
	Outcome  AccessOutcome
	Identity *domain.Identity
}

type AccessPolicy interface {
	Authorize(ctx context.Context, identityID string) AccessDecision
}

// SessionVerifier resolves a session credential to the identity id it names.
type SessionVerifier interface {
	Authenticate(token string) (identityID string, ok bool)
}
