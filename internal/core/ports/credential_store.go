package ports

import (
	"context"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// CredentialStore is the durable record of identities. Every method that
// changes more than one field does so in a single atomic unit.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	// FindByEmailOrUsername returns ErrAmbiguousIdentifier when more than one
	// identity matches.
	FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Identity, error)
	FindByInviteToken(ctx context.Context, token string) (*domain.Identity, error)
	FindByResetToken(ctx context.Context, token string) (*domain.Identity, error)
	List(ctx context.Context) ([]*domain.Identity, error)

	// Create inserts identity, including any invite token it carries.
	// Uniqueness violations return ErrConflict.
	Create(ctx context.Context, identity *domain.Identity) (*domain.Identity, error)
	Update(ctx context.Context, id string, patch domain.IdentityPatch) (*domain.Identity, error)
	// Delete removes the identity and everything it owns.
	Delete(ctx context.Context, id string) error

	// IssueInviteToken stores grant on the identity unless reuseLive is set
	// and a token unexpired at now already exists, in which case that token
	// is returned unchanged.
	IssueInviteToken(ctx context.Context, id string, grant domain.TokenGrant, reuseLive bool, now time.Time) (domain.TokenGrant, error)
	// ConsumeInviteToken sets the password hash, activates the identity and
	// clears the invite token. It fails with ErrInvalidToken when no identity
	// holds token and ErrExpiredToken when it expired at or before now.
	ConsumeInviteToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error)
	SetResetToken(ctx context.Context, id string, grant domain.TokenGrant) error
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error)
	RecordLogin(ctx context.Context, id string, at time.Time) error

	Ping(ctx context.Context) error
}
