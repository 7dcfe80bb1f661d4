package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/ports"
)

type accessPolicy struct {
	store ports.CredentialStore
	log   zerolog.Logger
}

// NewAccessPolicy returns the per-request authorization check. It always
// reads the identity from the store, so role and subscription changes apply
// to sessions issued before them.
func NewAccessPolicy(store ports.CredentialStore, log zerolog.Logger) ports.AccessPolicy {
	return &accessPolicy{store: store, log: log}
}

func (p *accessPolicy) Authorize(ctx context.Context, identityID string) ports.AccessDecision {
	if identityID == "" {
		return ports.AccessDecision{Outcome: ports.AccessLogin}
	}
	identity, err := p.store.FindByID(ctx, identityID)
	if err != nil {
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			p.log.Error().Err(err).Str("identity_id", identityID).Msg("authorize: identity lookup failed")
		}
		return ports.AccessDecision{Outcome: ports.AccessLogin}
	}
	// A deactivated identity is treated as signed out.
	if !identity.Active {
		return ports.AccessDecision{Outcome: ports.AccessLogin}
	}
	if identity.Lapsed() {
		return ports.AccessDecision{Outcome: ports.AccessLapsed, Identity: identity}
	}
	return ports.AccessDecision{Outcome: ports.AccessAllow, Identity: identity}
}
