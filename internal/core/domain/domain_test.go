package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCheckPassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Str0ngPass", true},
		{"short1A", false},
		{"alllowercase1", false},
		{"ALLUPPERCASE1", false},
		{"NoDigitsHere", false},
		{"Ünïcödé1x", true},
		{"Aa1" + strings.Repeat("x", 69), true},
		{"Aa1" + strings.Repeat("x", 70), false},
		{"Aa1" + strings.Repeat("é", 35), false},
	}
	for _, tc := range cases {
		err := CheckPassword(tc.password)
		if tc.ok && err != nil {
			t.Errorf("%q: expected ok, got %v", tc.password, err)
		}
		if !tc.ok && !errors.Is(err, ErrWeakPassword) {
			t.Errorf("%q: expected ErrWeakPassword, got %v", tc.password, err)
		}
	}
}

func TestValidEmailAndUsername(t *testing.T) {
	if !ValidEmail("a@example.com") {
		t.Fatalf("expected valid email")
	}
	for _, bad := range []string{"", "a", "@x", "a@", "a@b@c", "a b@c.d"} {
		if ValidEmail(bad) {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
	if ValidUsername("al@ice") {
		t.Fatalf("usernames containing @ must be rejected")
	}
	if !ValidUsername("alice") {
		t.Fatalf("expected valid username")
	}
}

func TestIdentity_LiveInvite(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := "abc"
	exp := now.Add(time.Hour)
	id := &Identity{InviteToken: &tok, InviteExpiresAt: &exp}

	if g, ok := id.LiveInvite(now); !ok || g.Token != "abc" {
		t.Fatalf("expected live invite, got %+v %v", g, ok)
	}
	if _, ok := id.LiveInvite(exp); ok {
		t.Fatalf("token must be expired at its expiry instant")
	}
}

func TestIdentity_CloneIsDeep(t *testing.T) {
	hash := "h"
	orig := &Identity{PasswordHash: &hash}
	c := orig.Clone()
	*c.PasswordHash = "changed"
	if *orig.PasswordHash != "h" {
		t.Fatalf("clone shares pointer with original")
	}
}

func TestValidationError_IsErrValidation(t *testing.T) {
	err := NewValidationError("missing fields", "email", "first_name")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ValidationError to match ErrValidation")
	}
	if err.Error() != "missing fields: email, first_name" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
