// Package memory is a process-local Credential Store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

type Store struct {
	mu   sync.RWMutex
	byID map[string]*domain.Identity
	now  func() time.Time
}

func New() *Store {
	return &Store{
		byID: make(map[string]*domain.Identity),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.byID[id]; ok {
		return i.Clone(), nil
	}
	return nil, domain.ErrIdentityNotFound
}

func (s *Store) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	return s.findOne(func(i *domain.Identity) bool { return i.Email == email })
}

func (s *Store) FindByEmailOrUsername(_ context.Context, identifier string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Identity
	for _, i := range s.byID {
		if i.Email == identifier || (i.Username != nil && *i.Username == identifier) {
			if found != nil {
				return nil, domain.ErrAmbiguousIdentifier
			}
			found = i
		}
	}
	if found == nil {
		return nil, domain.ErrIdentityNotFound
	}
	return found.Clone(), nil
}

func (s *Store) FindByInviteToken(_ context.Context, token string) (*domain.Identity, error) {
	return s.findOne(func(i *domain.Identity) bool { return i.InviteToken != nil && *i.InviteToken == token })
}

func (s *Store) FindByResetToken(_ context.Context, token string) (*domain.Identity, error) {
	return s.findOne(func(i *domain.Identity) bool { return i.ResetToken != nil && *i.ResetToken == token })
}

func (s *Store) List(_ context.Context) ([]*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Identity, 0, len(s.byID))
	for _, i := range s.byID {
		out = append(out, i.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) Create(_ context.Context, identity *domain.Identity) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := identity.Clone()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if err := i.CheckInvariants(); err != nil {
		return nil, err
	}
	if s.conflicts(i) {
		return nil, domain.ErrConflict
	}
	now := s.now()
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now
	}
	i.UpdatedAt = now
	s.byID[i.ID] = i
	return i.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, patch domain.IdentityPatch) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	next := cur.Clone()
	next.Apply(patch)
	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	if s.conflicts(next) {
		return nil, domain.ErrConflict
	}
	next.UpdatedAt = s.now()
	s.byID[id] = next
	return next.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return domain.ErrIdentityNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *Store) IssueInviteToken(_ context.Context, id string, grant domain.TokenGrant, reuseLive bool, now time.Time) (domain.TokenGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.TokenGrant{}, domain.ErrIdentityNotFound
	}
	if i.Status != domain.StatusInvited {
		return domain.TokenGrant{}, domain.ErrNotInvited
	}
	if reuseLive {
		if live, ok := i.LiveInvite(now); ok {
			return live, nil
		}
	}
	tok, exp := grant.Token, grant.ExpiresAt
	i.InviteToken, i.InviteExpiresAt = &tok, &exp
	i.UpdatedAt = s.now()
	return grant, nil
}

func (s *Store) ConsumeInviteToken(_ context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.lookup(func(i *domain.Identity) bool {
		return i.Status == domain.StatusInvited && i.InviteToken != nil && *i.InviteToken == token
	})
	if i == nil {
		return nil, domain.ErrInvalidToken
	}
	if i.InviteExpiresAt == nil || !now.Before(*i.InviteExpiresAt) {
		return nil, domain.ErrExpiredToken
	}
	hash := passwordHash
	i.PasswordHash = &hash
	i.Status = domain.StatusActive
	i.Active = true
	i.InviteToken, i.InviteExpiresAt = nil, nil
	i.UpdatedAt = s.now()
	return i.Clone(), nil
}

func (s *Store) SetResetToken(_ context.Context, id string, grant domain.TokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	tok, exp := grant.Token, grant.ExpiresAt
	i.ResetToken, i.ResetExpiresAt = &tok, &exp
	i.UpdatedAt = s.now()
	return nil
}

func (s *Store) ConsumeResetToken(_ context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.lookup(func(i *domain.Identity) bool { return i.ResetToken != nil && *i.ResetToken == token })
	if i == nil {
		return nil, domain.ErrInvalidToken
	}
	if i.ResetExpiresAt == nil || !now.Before(*i.ResetExpiresAt) {
		return nil, domain.ErrExpiredToken
	}
	hash := passwordHash
	i.PasswordHash = &hash
	i.ResetToken, i.ResetExpiresAt = nil, nil
	i.UpdatedAt = s.now()
	return i.Clone(), nil
}

func (s *Store) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	t := at
	i.LastLoginAt = &t
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) findOne(match func(*domain.Identity) bool) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.lookup(match); i != nil {
		return i.Clone(), nil
	}
	return nil, domain.ErrIdentityNotFound
}

// lookup must be called with mu held.
func (s *Store) lookup(match func(*domain.Identity) bool) *domain.Identity {
	for _, i := range s.byID {
		if match(i) {
			return i
		}
	}
	return nil
}

// conflicts must be called with mu held.
func (s *Store) conflicts(c *domain.Identity) bool {
	for id, i := range s.byID {
		if id == c.ID {
			continue
		}
		switch {
		case i.Email == c.Email:
			return true
		case sameString(i.Username, c.Username):
			return true
		case sameString(i.InviteToken, c.InviteToken), sameString(i.ResetToken, c.ResetToken):
			return true
		}
	}
	return false
}

func sameString(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
