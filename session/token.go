package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/identity"
)

// authTokenCookieName carries a bearer token for browser clients. The
// Authorization header takes precedence.
const authTokenCookieName = "auth_token"

// TokenValidator defines the interface for validating bearer tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*identity.Claims, error)
}

// TokenProvider resolves the principal from a bearer token
type TokenProvider struct {
	validator TokenValidator
}

// NewTokenProvider creates a TokenProvider
func NewTokenProvider(validator TokenValidator) *TokenProvider {
	return &TokenProvider{validator: validator}
}

// CurrentPrincipal implements Provider. A request without a token is
// unauthenticated; a request with a bad token is an error.
func (p *TokenProvider) CurrentPrincipal(r *http.Request) (*authz.Principal, error) {
	token := extractToken(r)
	if token == "" {
		return nil, nil
	}

	claims, err := p.validator.ValidateToken(r.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	return &authz.Principal{ID: claims.Subject, Role: authz.Role(claims.Role)}, nil
}

func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
