package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/refdata-portal/authz"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the authorized principal
	PrincipalKey contextKey = "principal"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetPrincipalFromContext retrieves the principal attached by RoleGuard
func GetPrincipalFromContext(ctx context.Context) *authz.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*authz.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds a principal to the context
func WithPrincipal(ctx context.Context, p *authz.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}
