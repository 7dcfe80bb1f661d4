package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

func TestAccessPolicy_Authorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	policy := NewAccessPolicy(f.store, zerolog.Nop())

	user := f.activeIdentity(t, "user@example.com", "", domain.RoleUser)
	admin := f.activeIdentity(t, "admin@example.com", "", domain.RoleAdmin)
	lapsed := f.activeIdentity(t, "lapsed@example.com", "", domain.RoleUser)
	lapsedAdmin := f.activeIdentity(t, "lapsed-admin@example.com", "", domain.RoleAdmin)
	off := f.activeIdentity(t, "off@example.com", "", domain.RoleUser)
	invited, _ := f.invitedIdentity(t, "invited@example.com")

	unsub := domain.SubscriptionUnsubscribed
	for _, id := range []string{lapsed.ID, lapsedAdmin.ID} {
		if _, err := f.store.Update(ctx, id, domain.IdentityPatch{SubscriptionStatus: &unsub}); err != nil {
			t.Fatalf("unsubscribe: %v", err)
		}
	}
	no := false
	if _, err := f.store.Update(ctx, off.ID, domain.IdentityPatch{Active: &no}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		name string
		id   string
		want ports.AccessOutcome
	}{
		{"no session", "", ports.AccessLogin},
		{"unknown identity", "does-not-exist", ports.AccessLogin},
		{"active user", user.ID, ports.AccessAllow},
		{"active admin", admin.ID, ports.AccessAllow},
		{"unsubscribed user", lapsed.ID, ports.AccessLapsed},
		{"unsubscribed admin keeps access", lapsedAdmin.ID, ports.AccessAllow},
		{"deactivated", off.ID, ports.AccessLogin},
		{"invited", invited.ID, ports.AccessLogin},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := policy.Authorize(ctx, tc.id)
			if d.Outcome != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, d.Outcome)
			}
			if d.Outcome == ports.AccessAllow && (d.Identity == nil || d.Identity.ID != tc.id) {
				t.Errorf("allow decision must carry the identity")
			}
		})
	}
}

func TestAccessPolicy_SeesChangesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	policy := NewAccessPolicy(f.store, zerolog.Nop())
	user := f.activeIdentity(t, "user@example.com", "", domain.RoleUser)

	if d := policy.Authorize(ctx, user.ID); d.Outcome != ports.AccessAllow {
		t.Fatalf("expected allow, got %s", d.Outcome)
	}
	unsub := domain.SubscriptionUnsubscribed
	if _, err := f.store.Update(ctx, user.ID, domain.IdentityPatch{SubscriptionStatus: &unsub}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if d := policy.Authorize(ctx, user.ID); d.Outcome != ports.AccessLapsed {
		t.Fatalf("expected lapsed after unsubscribe, got %s", d.Outcome)
	}
}
