package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

type provisioningService struct {
	store  ports.CredentialStore
	tokens *TokenIssuer
	queue  ports.NotificationQueue
	links  Links
	log    zerolog.Logger
	now    func() time.Time
}

// NewProvisioningService returns the create-or-reinvite flow driven by the
// storefront webhook.
func NewProvisioningService(
	store ports.CredentialStore,
	tokens *TokenIssuer,
	queue ports.NotificationQueue,
	links Links,
	log zerolog.Logger,
) ports.ProvisioningService {
	return &provisioningService{
		store:  store,
		tokens: tokens,
		queue:  queue,
		links:  links,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Provision creates an INVITED identity for a new email, leaves an ACTIVE one
// untouched and re-invites one that never finished onboarding.
func (s *provisioningService) Provision(ctx context.Context, in ports.ProvisionInput) (*ports.ProvisionResult, error) {
	ctx, span := tracer.Start(ctx, "provisioning.provision")
	defer span.End()

	in = normalizeProvisionInput(in)
	if err := validateProvisionInput(in); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, domain.ErrIdentityNotFound):
		result, err := s.create(ctx, in)
		if !errors.Is(err, domain.ErrConflict) {
			if result != nil {
				span.SetAttributes(attribute.String("provisioning.outcome", string(result.Outcome)))
			}
			return result, err
		}
		// Lost a race against a concurrent delivery of the same purchase.
		existing, err = s.store.FindByEmail(ctx, in.Email)
		if err != nil {
			return nil, fmt.Errorf("provision: reload after conflict: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("provision: %w", err)
	}

	result, err := s.existing(ctx, existing, in)
	if result != nil {
		span.SetAttributes(attribute.String("provisioning.outcome", string(result.Outcome)))
	}
	return result, err
}

func (s *provisioningService) create(ctx context.Context, in ports.ProvisionInput) (*ports.ProvisionResult, error) {
	grant, err := s.tokens.NewInviteGrant()
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}

	now := s.now()
	identity := &domain.Identity{
		Email:              in.Email,
		Name:               strings.TrimSpace(in.FirstName + " " + in.LastName),
		Role:               domain.RoleUser,
		Status:             domain.StatusInvited,
		Active:             false,
		SubscriptionStatus: domain.SubscriptionActive,
		InviteToken:        &grant.Token,
		InviteExpiresAt:    &grant.ExpiresAt,
		ProductName:        in.ProductName,
		ProductID:          in.ProductID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := s.store.Create(ctx, identity)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("provision: create identity: %w", err)
	}

	link := s.links.Invite(grant.Token)
	s.notify(created, ports.OutcomeCreated, link, grant.ExpiresAt)
	s.log.Info().Str("identity_id", created.ID).Str("email", created.Email).Msg("identity provisioned")

	return &ports.ProvisionResult{Outcome: ports.OutcomeCreated, Identity: created, InviteLink: link}, nil
}

func (s *provisioningService) existing(ctx context.Context, identity *domain.Identity, in ports.ProvisionInput) (*ports.ProvisionResult, error) {
	if identity.Status == domain.StatusActive {
		return s.alreadyActive(identity), nil
	}

	// A repeated purchase is a new business event: always mint a new token.
	// The store refuses if the invite was redeemed after our read.
	grant, err := s.tokens.ReissueInvite(ctx, identity.ID)
	if errors.Is(err, domain.ErrNotInvited) {
		current, ferr := s.store.FindByID(ctx, identity.ID)
		if ferr != nil {
			return nil, fmt.Errorf("provision: reload after activation: %w", ferr)
		}
		return s.alreadyActive(current), nil
	}
	if err != nil {
		return nil, fmt.Errorf("provision: %w", err)
	}
	identity.InviteToken = &grant.Token
	identity.InviteExpiresAt = &grant.ExpiresAt

	if identity.ProductName != in.ProductName || identity.ProductID != in.ProductID {
		updated, err := s.store.Update(ctx, identity.ID, domain.IdentityPatch{
			ProductName: &in.ProductName,
			ProductID:   &in.ProductID,
		})
		if err != nil {
			// The new invite is already stored; stale product metadata must not block it.
			s.log.Warn().Err(err).Str("identity_id", identity.ID).Msg("product metadata not refreshed")
		} else {
			identity = updated
		}
	}

	link := s.links.Invite(grant.Token)
	s.notify(identity, ports.OutcomeReinvited, link, grant.ExpiresAt)
	s.log.Info().Str("identity_id", identity.ID).Msg("identity re-invited")

	return &ports.ProvisionResult{Outcome: ports.OutcomeReinvited, Identity: identity, InviteLink: link}, nil
}

func (s *provisioningService) alreadyActive(identity *domain.Identity) *ports.ProvisionResult {
	s.log.Info().Str("identity_id", identity.ID).Msg("provisioning skipped, identity already active")
	return &ports.ProvisionResult{Outcome: ports.OutcomeAlreadyActive, Identity: identity}
}

// notify runs only after the store call returned, so the token it links to
// is already committed.
func (s *provisioningService) notify(identity *domain.Identity, outcome ports.ProvisionOutcome, link string, exp time.Time) {
	s.queue.Enqueue(domain.Notification{
		Kind:       domain.NotifyInvite,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		Link:       link,
		ExpiresAt:  exp,
		Outcome:    string(outcome),
	})
}

func normalizeProvisionInput(in ports.ProvisionInput) ports.ProvisionInput {
	return ports.ProvisionInput{
		Email:       domain.NormalizeEmail(in.Email),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		ProductName: strings.TrimSpace(in.ProductName),
		ProductID:   strings.TrimSpace(in.ProductID),
	}
}

func validateProvisionInput(in ports.ProvisionInput) error {
	if fields := missing(map[string]string{
		"email":        in.Email,
		"first_name":   in.FirstName,
		"last_name":    in.LastName,
		"product_name": in.ProductName,
		"product_id":   in.ProductID,
	}); len(fields) > 0 {
		return domain.NewValidationError("missing fields", fields...)
	}
	if !domain.ValidEmail(in.Email) {
		return domain.NewValidationError("invalid email", "email")
	}
	return nil
}
