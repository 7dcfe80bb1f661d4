package ports

import (
	"context"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// Session is a signed session credential handed to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type AuthService interface {
	Login(ctx context.Context, identifier, password string) (*domain.Identity, Session, error)
	CurrentUser(ctx context.Context, token string) *domain.Identity
	SetPassword(ctx context.Context, inviteToken, password string) (*domain.Identity, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, password string) (*domain.Identity, error)
	Register(ctx context.Context) error
}
