package ports

import (
	"context"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

// ProvisionInput is the normalized provisioning payload.
type ProvisionInput struct {
	Email       string
	FirstName   string
	LastName    string
	ProductName string
	ProductID   string
}

type ProvisionOutcome string

const (
	OutcomeCreated       ProvisionOutcome = "created"
	OutcomeAlreadyActive ProvisionOutcome = "already_active"
	OutcomeReinvited     ProvisionOutcome = "reinvited"
)

type ProvisionResult struct {
	Outcome    ProvisionOutcome
	Identity   *domain.Identity
	InviteLink string
}

type ProvisioningService interface {
	Provision(ctx context.Context, in ProvisionInput) (*ProvisionResult, error)
}
