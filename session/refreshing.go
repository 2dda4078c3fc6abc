package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"go.uber.org/zap"
)

// RoleLookup returns the stored role for a principal id. found is false when
// no such user exists.
type RoleLookup interface {
	LookupRole(ctx context.Context, id string) (role authz.Role, found bool, err error)
}

// RoleLookupFunc adapts a function to RoleLookup
type RoleLookupFunc func(ctx context.Context, id string) (authz.Role, bool, error)

// LookupRole implements RoleLookup
func (f RoleLookupFunc) LookupRole(ctx context.Context, id string) (authz.Role, bool, error) {
	return f(ctx, id)
}

// RefreshingProvider replaces the role carried by the inner provider with the
// role currently stored for the principal, so demotions take effect without
// a new session.
type RefreshingProvider struct {
	inner  Provider
	lookup RoleLookup
	cache  *RoleCache
	logger *zap.Logger
}

// NewRefreshingProvider wraps inner. cache may be nil.
func NewRefreshingProvider(inner Provider, lookup RoleLookup, cache *RoleCache, logger *zap.Logger) *RefreshingProvider {
	return &RefreshingProvider{
		inner:  inner,
		lookup: lookup,
		cache:  cache,
		logger: logger,
	}
}

// CurrentPrincipal implements Provider
func (p *RefreshingProvider) CurrentPrincipal(r *http.Request) (*authz.Principal, error) {
	principal, err := p.inner.CurrentPrincipal(r)
	if err != nil || principal == nil {
		return nil, err
	}
	if !principal.Valid() {
		p.logger.Warn("session carries unrecognised role",
			zap.String("user_id", principal.ID),
			zap.String("role", string(principal.Role)))
		return nil, nil
	}

	if p.cache != nil {
		if role, ok := p.cache.Get(principal.ID); ok {
			return &authz.Principal{ID: principal.ID, Role: role}, nil
		}
	}

	role, found, err := p.lookup.LookupRole(r.Context(), principal.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh role: %w", err)
	}
	if !found {
		p.logger.Warn("session principal no longer exists",
			zap.String("user_id", principal.ID))
		return nil, nil
	}
	if !role.Valid() {
		p.logger.Warn("stored role is not recognised",
			zap.String("user_id", principal.ID),
			zap.String("role", string(role)))
		return nil, nil
	}

	if p.cache != nil {
		p.cache.Set(principal.ID, role)
	}
	return &authz.Principal{ID: principal.ID, Role: role}, nil
}

// Forget drops any cached role for id
func (p *RefreshingProvider) Forget(id string) {
	if p.cache != nil {
		p.cache.Invalidate(id)
	}
}
