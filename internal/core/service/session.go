package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

const (
	DefaultSessionTTL = 7 * 24 * time.Hour
	sessionIssuer     = "accessd"
)

var ErrMissingSigningSecret = errors.New("session signing secret is not configured")

// SessionClaims is the payload of a session credential.
type SessionClaims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies HS256 session credentials. It holds the
// secret for its whole lifetime and never reads configuration itself.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewSessionSigner(secret string, ttl time.Duration) (*SessionSigner, error) {
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &SessionSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	s.parser = s.newParser()
	return s, nil
}

// WithClock replaces the time source used for issuing and verifying.
func (s *SessionSigner) WithClock(now func() time.Time) *SessionSigner {
	s.now = now
	s.parser = s.newParser()
	return s
}

func (s *SessionSigner) newParser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(s.now),
	)
}

func (s *SessionSigner) TTL() time.Duration { return s.ttl }

// Sign issues a session credential for identity.
func (s *SessionSigner) Sign(identity *domain.Identity) (ports.Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := SessionClaims{
		Email: identity.Email,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    sessionIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return ports.Session{}, fmt.Errorf("sign session: %w", err)
	}
	return ports.Session{Token: signed, ExpiresAt: exp}, nil
}

// Verify returns the claims of a valid credential, or nil for a malformed,
// forged or expired one.
func (s *SessionSigner) Verify(token string) *SessionClaims {
	if token == "" {
		return nil
	}
	claims := &SessionClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil
	}
	return claims
}

// Authenticate resolves a credential to the identity id it names.
func (s *SessionSigner) Authenticate(token string) (string, bool) {
	claims := s.Verify(token)
	if claims == nil {
		return "", false
	}
	return claims.Subject, true
}
