package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

var tracer = otel.Tracer("github.com/faisalazhar1701/destinycreditai-sub000/internal/core/service")

// ThrottlePolicy bounds attempts per key within a window. A zero Limit disables it.
type ThrottlePolicy struct {
	Limit  int
	Window time.Duration
}

type AuthConfig struct {
	Links  Links
	Login  ThrottlePolicy
	Forgot ThrottlePolicy
}

// AuthService implements login, session lookup and the password flows.
type AuthService struct {
	store    ports.CredentialStore
	tokens   *TokenIssuer
	sessions *SessionSigner
	hasher   *PasswordHasher
	queue    ports.NotificationQueue
	throttle ports.Throttle
	cfg      AuthConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService wires the auth flows. throttle may be nil.
func NewAuthService(
	store ports.CredentialStore,
	tokens *TokenIssuer,
	sessions *SessionSigner,
	hasher *PasswordHasher,
	queue ports.NotificationQueue,
	throttle ports.Throttle,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		store:    store,
		tokens:   tokens,
		sessions: sessions,
		hasher:   hasher,
		queue:    queue,
		throttle: throttle,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login accepts an email or a username. Every reason a login can fail for
// an unknown or unusable identity collapses to ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*domain.Identity, ports.Session, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ports.Session{}, domain.NewValidationError("missing fields", missing(map[string]string{
			"identifier": identifier, "password": password,
		})...)
	}

	if !s.allow(ctx, "login:"+identifier, s.cfg.Login) {
		return nil, ports.Session{}, domain.ErrThrottled
	}

	identity, err := s.store.FindByEmailOrUsername(ctx, identifier)
	switch {
	case errors.Is(err, domain.ErrIdentityNotFound), errors.Is(err, domain.ErrAmbiguousIdentifier):
		return nil, ports.Session{}, domain.ErrInvalidCredentials
	case err != nil:
		return nil, ports.Session{}, fmt.Errorf("login: %w", err)
	}
	span.SetAttributes(attribute.String("identity.id", identity.ID))

	if !identity.HasPassword() || identity.Status != domain.StatusActive || !identity.Active {
		return nil, ports.Session{}, domain.ErrInvalidCredentials
	}
	if !s.hasher.Matches(*identity.PasswordHash, password) {
		return nil, ports.Session{}, domain.ErrInvalidCredentials
	}

	session, err := s.sessions.Sign(identity)
	if err != nil {
		return nil, ports.Session{}, fmt.Errorf("login: %w", err)
	}

	now := s.now()
	if err := s.store.RecordLogin(ctx, identity.ID, now); err != nil {
		s.log.Warn().Err(err).Str("identity_id", identity.ID).Msg("failed to record last login")
	} else {
		identity.LastLoginAt = &now
	}

	s.log.Info().Str("identity_id", identity.ID).Msg("login succeeded")
	return identity, session, nil
}

// CurrentUser resolves a session credential to the identity it names, or nil.
func (s *AuthService) CurrentUser(ctx context.Context, token string) *domain.Identity {
	id, ok := s.sessions.Authenticate(token)
	if !ok {
		return nil
	}
	identity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			s.log.Warn().Err(err).Str("identity_id", id).Msg("current user lookup failed")
		}
		return nil
	}
	return identity
}

// SetPassword consumes an invite token.
func (s *AuthService) SetPassword(ctx context.Context, inviteToken, password string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.set_password")
	defer span.End()

	if inviteToken == "" || password == "" {
		return nil, domain.NewValidationError("missing fields", missing(map[string]string{
			"token": inviteToken, "password": password,
		})...)
	}
	identity, err := s.tokens.ConsumeInvite(ctx, inviteToken, password)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("identity_id", identity.ID).Msg("invite accepted, identity activated")
	return identity, nil
}

// ForgotPassword never reveals whether email belongs to an identity. The
// reset token is issued and the notification queued only when it does.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "auth.forgot_password")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.NewValidationError("missing fields", "email")
	}
	if !s.allow(ctx, "forgot:"+email, s.cfg.Forgot) {
		s.log.Info().Str("email", email).Msg("password reset throttled")
		return nil
	}

	grant, identity, found, err := s.tokens.IssueReset(ctx, email)
	if err != nil {
		return err
	}
	if !found {
		s.log.Debug().Str("email", email).Msg("password reset requested for unknown email")
		return nil
	}

	s.queue.Enqueue(domain.Notification{
		Kind:       domain.NotifyPasswordReset,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		Link:       s.cfg.Links.Reset(grant.Token),
		ExpiresAt:  grant.ExpiresAt,
	})
	return nil
}

// ResetPassword consumes a reset token under the same password policy as invites.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, password string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.reset_password")
	defer span.End()

	if resetToken == "" || password == "" {
		return nil, domain.NewValidationError("missing fields", missing(map[string]string{
			"token": resetToken, "password": password,
		})...)
	}
	identity, err := s.tokens.ConsumeReset(ctx, resetToken, password)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("identity_id", identity.ID).Msg("password reset completed")
	return identity, nil
}

// Register always fails: identities are only created by provisioning or an administrator.
func (s *AuthService) Register(context.Context) error {
	return domain.ErrSignupDisabled
}

// allow fails open: a throttle outage must not lock everyone out.
func (s *AuthService) allow(ctx context.Context, key string, p ThrottlePolicy) bool {
	if s.throttle == nil || p.Limit <= 0 {
		return true
	}
	ok, err := s.throttle.Allow(ctx, key, p.Limit, p.Window)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("throttle check failed, allowing")
		return true
	}
	return ok
}

// missing returns the names of empty values in a stable order.
func missing(fields map[string]string) []string {
	order := []string{"email", "identifier", "first_name", "last_name", "product_name", "product_id", "token", "password"}
	var out []string
	for _, name := range order {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	return out
}
