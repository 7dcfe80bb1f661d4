package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

type adminService struct {
	store  ports.CredentialStore
	tokens *TokenIssuer
	hasher *PasswordHasher
	queue  ports.NotificationQueue
	links  Links
	log    zerolog.Logger
	now    func() time.Time
}

// NewAdminService returns the administrator lifecycle actions.
func NewAdminService(
	store ports.CredentialStore,
	tokens *TokenIssuer,
	hasher *PasswordHasher,
	queue ports.NotificationQueue,
	links Links,
	log zerolog.Logger,
) ports.AdminService {
	return &adminService{
		store:  store,
		tokens: tokens,
		hasher: hasher,
		queue:  queue,
		links:  links,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *adminService) ListUsers(ctx context.Context) ([]*domain.Identity, error) {
	return s.store.List(ctx)
}

func (s *adminService) GetUser(ctx context.Context, id string) (*domain.Identity, error) {
	return s.store.FindByID(ctx, id)
}

// CreateUser creates an ACTIVE identity. A random password is generated and
// returned once when none is supplied.
func (s *adminService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*ports.CreateUserResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return nil, domain.NewValidationError("missing fields", "email")
	}
	if !domain.ValidEmail(email) {
		return nil, domain.NewValidationError("invalid email", "email")
	}
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.IsValid() {
		return nil, domain.NewValidationError("invalid role", "role")
	}

	password, generated := in.Password, ""
	if password == "" {
		if password, err = generatePassword(); err != nil {
			return nil, err
		}
		generated = password
	} else if err := domain.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	created, err := s.store.Create(ctx, &domain.Identity{
		Email:              email,
		Name:               strings.TrimSpace(in.Name),
		Username:           username,
		PasswordHash:       &hash,
		Role:               role,
		Status:             domain.StatusActive,
		Active:             true,
		SubscriptionStatus: domain.SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("identity_id", created.ID).Str("role", string(role)).Msg("identity created by administrator")
	return &ports.CreateUserResult{Identity: created, GeneratedPassword: generated}, nil
}

func (s *adminService) UpdateUser(ctx context.Context, id string, in ports.UpdateUserInput) (*domain.Identity, error) {
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := domain.IdentityPatch{Name: in.Name, Role: in.Role, SubscriptionStatus: in.SubscriptionStatus}
	if in.Username != nil {
		if patch.Username, err = normalizeUsername(*in.Username); err != nil {
			return nil, err
		}
		if patch.Username == nil {
			empty := ""
			patch.Username = &empty
		}
	}
	if in.Role != nil && !in.Role.IsValid() {
		return nil, domain.NewValidationError("invalid role", "role")
	}
	if in.SubscriptionStatus != nil {
		if !in.SubscriptionStatus.IsValid() {
			return nil, domain.NewValidationError("invalid subscription status", "subscription_status")
		}
		if *in.SubscriptionStatus == domain.SubscriptionUnsubscribed && current.SubscriptionStatus != domain.SubscriptionUnsubscribed {
			now := s.now()
			patch.UnsubscribedAt = &now
		}
	}
	if in.Active != nil {
		// An identity that never set a password cannot be switched on.
		if *in.Active && current.Status != domain.StatusActive {
			return nil, domain.NewValidationError("identity has not accepted its invite", "active")
		}
		patch.Active = in.Active
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("identity_id", id).Msg("identity updated by administrator")
	return updated, nil
}

// SetPassword stores a new password and activates the identity, clearing any
// pending invite in the same write.
func (s *adminService) SetPassword(ctx context.Context, id, password string) (*domain.Identity, error) {
	if err := domain.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.Update(ctx, id, domain.IdentityPatch{PasswordHash: &hash})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("identity_id", id).Msg("password set by administrator")
	return updated, nil
}

// ResendInvite keeps a live invite link valid and only mints a new token
// when the previous one expired.
func (s *adminService) ResendInvite(ctx context.Context, id string) (string, error) {
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if identity.Status == domain.StatusActive {
		return "", fmt.Errorf("resend invite: identity already active: %w", domain.ErrConflict)
	}
	grant, identity, err := s.tokens.IssueInvite(ctx, identity.Email)
	if errors.Is(err, domain.ErrNotInvited) {
		return "", fmt.Errorf("resend invite: identity already active: %w", domain.ErrConflict)
	}
	if err != nil {
		return "", err
	}
	link := s.links.Invite(grant.Token)
	s.queue.Enqueue(domain.Notification{
		Kind:       domain.NotifyInvite,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		Link:       link,
		ExpiresAt:  grant.ExpiresAt,
	})
	return link, nil
}

// DeleteUser hard-deletes an identity and everything it owns.
func (s *adminService) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return domain.NewValidationError("administrators cannot delete themselves", "id")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return err
		}
		return fmt.Errorf("delete identity: %w", err)
	}
	s.log.Info().Str("identity_id", id).Str("actor_id", actorID).Msg("identity deleted")
	return nil
}

// normalizeUsername returns nil for an empty username.
func normalizeUsername(username string) (*string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	if !domain.ValidUsername(username) {
		return nil, domain.NewValidationError("invalid username", "username")
	}
	return &username, nil
}
