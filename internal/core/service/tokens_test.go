package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

func TestTokenIssuer_IssueInviteReusesLiveToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, grant := f.invitedIdentity(t, "ana@example.com")

	got, identity, err := f.tokens.IssueInvite(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token != grant.Token || !got.ExpiresAt.Equal(grant.ExpiresAt) {
		t.Errorf("expected live token reused, got %+v want %+v", got, grant)
	}
	if identity.Email != "ana@example.com" {
		t.Errorf("unexpected identity %s", identity.Email)
	}
}

func TestTokenIssuer_IssueInviteReplacesExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, grant := f.invitedIdentity(t, "ana@example.com")

	f.clock.Advance(DefaultInviteTTL)
	got, _, err := f.tokens.IssueInvite(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token == grant.Token {
		t.Fatal("expected a fresh token once the previous one expired")
	}
	if want := f.clock.Now().Add(DefaultInviteTTL); !got.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %s, got %s", want, got.ExpiresAt)
	}
}

func TestTokenIssuer_IssueInviteUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.tokens.IssueInvite(context.Background(), "nobody@example.com")
	if !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestTokenIssuer_ReissueInviteAlwaysRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity, grant := f.invitedIdentity(t, "ana@example.com")

	got, err := f.tokens.ReissueInvite(ctx, identity.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Token == grant.Token {
		t.Fatal("expected rotated token")
	}
	if _, err := f.tokens.ConsumeInvite(ctx, grant.Token, testPassword); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("old token should be dead, got %v", err)
	}
}

func TestTokenIssuer_InviteIssuanceRefusesActiveIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	active := f.activeIdentity(t, "ana@example.com", "", domain.RoleUser)

	if _, err := f.tokens.ReissueInvite(ctx, active.ID); !errors.Is(err, domain.ErrNotInvited) {
		t.Fatalf("reissue: expected ErrNotInvited, got %v", err)
	}
	if _, _, err := f.tokens.IssueInvite(ctx, "ana@example.com"); !errors.Is(err, domain.ErrNotInvited) {
		t.Fatalf("issue: expected ErrNotInvited, got %v", err)
	}
	stored, _ := f.store.FindByID(ctx, active.ID)
	if stored.InviteToken != nil {
		t.Fatal("active identity must not hold an invite token")
	}
}

func TestTokenIssuer_ConsumeInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, grant := f.invitedIdentity(t, "ana@example.com")

	identity, err := f.tokens.ConsumeInvite(ctx, grant.Token, testPassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.Status != domain.StatusActive || !identity.Active {
		t.Errorf("expected ACTIVE and active, got %s/%v", identity.Status, identity.Active)
	}
	if identity.InviteToken != nil || identity.InviteExpiresAt != nil {
		t.Error("expected invite cleared")
	}
	if !identity.HasPassword() || !f.hasher.Matches(*identity.PasswordHash, testPassword) {
		t.Error("expected stored hash to match the new password")
	}

	if _, err := f.tokens.ConsumeInvite(ctx, grant.Token, testPassword); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("second use: expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_ConsumeInviteExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr error
	}{
		{"one second before expiry", DefaultInviteTTL - time.Second, nil},
		{"exactly at expiry", DefaultInviteTTL, domain.ErrExpiredToken},
		{"after expiry", DefaultInviteTTL + time.Minute, domain.ErrExpiredToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, grant := f.invitedIdentity(t, "ana@example.com")
			f.clock.Advance(tc.advance)

			_, err := f.tokens.ConsumeInvite(context.Background(), grant.Token, testPassword)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTokenIssuer_ConsumeInviteRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, grant := f.invitedIdentity(t, "ana@example.com")

	if _, err := f.tokens.ConsumeInvite(ctx, "", testPassword); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("empty token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.tokens.ConsumeInvite(ctx, "not-a-token", testPassword); !errors.Is(err, domain.ErrInvalidToken) {
		t.Errorf("unknown token: expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.tokens.ConsumeInvite(ctx, grant.Token, "weak"); !errors.Is(err, domain.ErrWeakPassword) {
		t.Errorf("weak password: expected ErrWeakPassword, got %v", err)
	}
	// bcrypt cannot hash more than 72 bytes; the policy rejects it first.
	long := "Aa1" + strings.Repeat("x", 80)
	if _, err := f.tokens.ConsumeInvite(ctx, grant.Token, long); !errors.Is(err, domain.ErrWeakPassword) {
		t.Errorf("overlong password: expected ErrWeakPassword, got %v", err)
	}
	// A rejected password leaves the token usable.
	if _, err := f.tokens.ConsumeInvite(ctx, grant.Token, testPassword); err != nil {
		t.Errorf("expected token still valid, got %v", err)
	}
}

func TestTokenIssuer_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	_, grant := f.invitedIdentity(t, "ana@example.com")

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tokens.ConsumeInvite(context.Background(), grant.Token, testPassword)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", ok)
	}
}

func TestTokenIssuer_IssueResetUnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, identity, found, err := f.tokens.IssueReset(context.Background(), "nobody@example.com")
	if err != nil || found || identity != nil {
		t.Fatalf("expected silent miss, got found=%v identity=%v err=%v", found, identity, err)
	}
}

func TestTokenIssuer_IssueResetReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeIdentity(t, "ana@example.com", "", domain.RoleUser)

	first, _, found, err := f.tokens.IssueReset(ctx, "ana@example.com")
	if err != nil || !found {
		t.Fatalf("first reset: found=%v err=%v", found, err)
	}
	second, _, _, err := f.tokens.IssueReset(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("expected a new reset token")
	}
	if want := f.clock.Now().Add(DefaultResetTTL); !second.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %s, got %s", want, second.ExpiresAt)
	}
	if _, err := f.tokens.ConsumeReset(ctx, first.Token, "N3wPassword"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("superseded token: expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_ConsumeReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.activeIdentity(t, "root@example.com", "root", domain.RoleAdmin)

	grant, _, _, err := f.tokens.IssueReset(ctx, admin.Email)
	if err != nil {
		t.Fatalf("issue reset: %v", err)
	}
	updated, err := f.tokens.ConsumeReset(ctx, grant.Token, "N3wPassword")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Role != domain.RoleAdmin || updated.Status != domain.StatusActive {
		t.Errorf("reset must not change role or status, got %s/%s", updated.Role, updated.Status)
	}
	if updated.ResetToken != nil {
		t.Error("expected reset token cleared")
	}
	if !f.hasher.Matches(*updated.PasswordHash, "N3wPassword") {
		t.Error("expected new password stored")
	}
	if _, err := f.tokens.ConsumeReset(ctx, grant.Token, "N3wPassword"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("second use: expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_ConsumeResetExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeIdentity(t, "ana@example.com", "", domain.RoleUser)

	grant, _, _, _ := f.tokens.IssueReset(ctx, "ana@example.com")
	f.clock.Advance(DefaultResetTTL)
	if _, err := f.tokens.ConsumeReset(ctx, grant.Token, "N3wPassword"); !errors.Is(err, domain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestNewToken_IsRandomHex(t *testing.T) {
	a, err := newToken()
	if err != nil {
		t.Fatalf("newToken: %v", err)
	}
	b, _ := newToken()
	if len(a) != tokenBytes*2 {
		t.Errorf("expected %d hex chars, got %d", tokenBytes*2, len(a))
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}
