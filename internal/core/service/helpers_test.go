package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingQueue struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (q *recordingQueue) Enqueue(n domain.Notification) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.got = append(q.got, n)
}

func (q *recordingQueue) sent() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Notification(nil), q.got...)
}

type stubThrottle struct {
	allow bool
	err   error
	keys  []string
}

func (t *stubThrottle) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	t.keys = append(t.keys, key)
	return t.allow, t.err
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

const testPassword = "Passw0rdOK"

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	hasher   *PasswordHasher
	tokens   *TokenIssuer
	sessions *SessionSigner
	queue    *recordingQueue
	links    Links
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.New()
	hasher := NewPasswordHasher(bcrypt.MinCost)
	signer, err := NewSessionSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionSigner: %v", err)
	}
	return &fixture{
		store:    store,
		clock:    clock,
		hasher:   hasher,
		tokens:   NewTokenIssuer(store, hasher, DefaultInviteTTL, DefaultResetTTL).WithClock(clock.Now),
		sessions: signer.WithClock(clock.Now),
		queue:    &recordingQueue{},
		links:    Links{BaseURL: "https://app.example.com"},
	}
}

func (f *fixture) authService(throttle ports.Throttle, cfg AuthConfig) *AuthService {
	cfg.Links = f.links
	svc := NewAuthService(f.store, f.tokens, f.sessions, f.hasher, f.queue, throttle, cfg, zerolog.Nop())
	svc.now = f.clock.Now
	return svc
}

// activeIdentity stores an ACTIVE identity with testPassword.
func (f *fixture) activeIdentity(t *testing.T, email, username string, role domain.Role) *domain.Identity {
	t.Helper()
	hash, err := f.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	i := &domain.Identity{
		Email:              email,
		Name:               "Test User",
		PasswordHash:       &hash,
		Role:               role,
		Status:             domain.StatusActive,
		Active:             true,
		SubscriptionStatus: domain.SubscriptionActive,
	}
	if username != "" {
		i.Username = &username
	}
	created, err := f.store.Create(context.Background(), i)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return created
}

// invitedIdentity stores an INVITED identity with a live invite token.
func (f *fixture) invitedIdentity(t *testing.T, email string) (*domain.Identity, domain.TokenGrant) {
	t.Helper()
	grant, err := f.tokens.NewInviteGrant()
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	created, err := f.store.Create(context.Background(), &domain.Identity{
		Email:              email,
		Name:               "Invited User",
		Role:               domain.RoleUser,
		Status:             domain.StatusInvited,
		SubscriptionStatus: domain.SubscriptionActive,
		InviteToken:        &grant.Token,
		InviteExpiresAt:    &grant.ExpiresAt,
	})
	if err != nil {
		t.Fatalf("create invited identity: %v", err)
	}
	return created, grant
}
