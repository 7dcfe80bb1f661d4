package ports

import (
	"context"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

type CreateUserInput struct {
	Email    string
	Name     string
	Username string
	Password string
	Role     domain.Role
}

// CreateUserResult carries the generated password when the caller supplied none.
type CreateUserResult struct {
	Identity          *domain.Identity
	GeneratedPassword string
}

type UpdateUserInput struct {
	Name               *string
	Username           *string
	Role               *domain.Role
	Active             *bool
	SubscriptionStatus *domain.SubscriptionStatus
}

type AdminService interface {
	ListUsers(ctx context.Context) ([]*domain.Identity, error)
	GetUser(ctx context.Context, id string) (*domain.Identity, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*CreateUserResult, error)
	UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*domain.Identity, error)
	SetPassword(ctx context.Context, id, password string) (*domain.Identity, error)
	ResendInvite(ctx context.Context, id string) (string, error)
	DeleteUser(ctx context.Context, actorID, id string) error
}
