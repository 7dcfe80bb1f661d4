package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

const (
	tokenBytes       = 32
	DefaultInviteTTL = 48 * time.Hour
	DefaultResetTTL  = 15 * time.Minute
)

// TokenIssuer mints, reuses, expires and consumes invite and reset tokens.
type TokenIssuer struct {
	store     ports.CredentialStore
	hasher    *PasswordHasher
	inviteTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

func NewTokenIssuer(store ports.CredentialStore, hasher *PasswordHasher, inviteTTL, resetTTL time.Duration) *TokenIssuer {
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	if resetTTL <= 0 {
		resetTTL = DefaultResetTTL
	}
	return &TokenIssuer{
		store:     store,
		hasher:    hasher,
		inviteTTL: inviteTTL,
		resetTTL:  resetTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// NewInviteGrant mints an invite token without persisting it. Used when the
// token is written together with a new identity.
func (t *TokenIssuer) NewInviteGrant() (domain.TokenGrant, error) {
	return t.grant(t.inviteTTL)
}

// IssueInvite returns the identity's live invite token if one exists,
// otherwise stores and returns a fresh one.
func (t *TokenIssuer) IssueInvite(ctx context.Context, email string) (domain.TokenGrant, *domain.Identity, error) {
	identity, err := t.store.FindByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return domain.TokenGrant{}, nil, fmt.Errorf("issue invite: %w", err)
	}
	g, err := t.issueInvite(ctx, identity.ID, true)
	if err != nil {
		return domain.TokenGrant{}, nil, err
	}
	return g, identity, nil
}

// ReissueInvite always replaces the identity's invite token.
func (t *TokenIssuer) ReissueInvite(ctx context.Context, identityID string) (domain.TokenGrant, error) {
	return t.issueInvite(ctx, identityID, false)
}

func (t *TokenIssuer) issueInvite(ctx context.Context, identityID string, reuseLive bool) (domain.TokenGrant, error) {
	fresh, err := t.grant(t.inviteTTL)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	g, err := t.store.IssueInviteToken(ctx, identityID, fresh, reuseLive, t.now())
	if err != nil {
		return domain.TokenGrant{}, fmt.Errorf("issue invite: %w", err)
	}
	return g, nil
}

// ConsumeInvite sets the first password and activates the identity.
func (t *TokenIssuer) ConsumeInvite(ctx context.Context, token, password string) (*domain.Identity, error) {
	return t.consume(ctx, token, password, t.store.FindByInviteToken, t.store.ConsumeInviteToken,
		func(i *domain.Identity) *time.Time { return i.InviteExpiresAt })
}

// IssueReset always replaces any previous reset token. found is false when
// no identity has the email; callers must not reveal that outward.
func (t *TokenIssuer) IssueReset(ctx context.Context, email string) (g domain.TokenGrant, identity *domain.Identity, found bool, err error) {
	identity, err = t.store.FindByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return domain.TokenGrant{}, nil, false, nil
	}
	if err != nil {
		return domain.TokenGrant{}, nil, false, fmt.Errorf("issue reset: %w", err)
	}
	g, err = t.grant(t.resetTTL)
	if err != nil {
		return domain.TokenGrant{}, nil, false, err
	}
	if err := t.store.SetResetToken(ctx, identity.ID, g); err != nil {
		return domain.TokenGrant{}, nil, false, fmt.Errorf("issue reset: %w", err)
	}
	return g, identity, true, nil
}

// ConsumeReset replaces the password. Status and role are left untouched.
func (t *TokenIssuer) ConsumeReset(ctx context.Context, token, password string) (*domain.Identity, error) {
	return t.consume(ctx, token, password, t.store.FindByResetToken, t.store.ConsumeResetToken,
		func(i *domain.Identity) *time.Time { return i.ResetExpiresAt })
}

type (
	findByToken    func(ctx context.Context, token string) (*domain.Identity, error)
	consumeByToken func(ctx context.Context, token, hash string, now time.Time) (*domain.Identity, error)
)

func (t *TokenIssuer) consume(ctx context.Context, token, password string, find findByToken, apply consumeByToken, expiry func(*domain.Identity) *time.Time) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	identity, err := find(ctx, token)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	now := t.now()
	if exp := expiry(identity); exp == nil || !now.Before(*exp) {
		return nil, domain.ErrExpiredToken
	}
	if err := domain.CheckPassword(password); err != nil {
		return nil, err
	}
	hash, err := t.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	// The store re-checks ownership and expiry inside the same write, so a
	// concurrent consumer or re-invite between find and apply cannot win twice.
	updated, err := apply(ctx, token, hash, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrExpiredToken) {
			return nil, err
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}
	return updated, nil
}

func (t *TokenIssuer) grant(ttl time.Duration) (domain.TokenGrant, error) {
	tok, err := newToken()
	if err != nil {
		return domain.TokenGrant{}, err
	}
	return domain.TokenGrant{Token: tok, ExpiresAt: t.now().Add(ttl)}, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
