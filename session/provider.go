// Package session resolves the principal behind a request. Enforcement
// points receive a Provider at construction and call it once per request.
package session

import (
	"net/http"

	"github.com/upb/refdata-portal/authz"
)

// Provider resolves the current principal. A nil principal with a nil error
// means the request is unauthenticated.
type Provider interface {
	CurrentPrincipal(r *http.Request) (*authz.Principal, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(r *http.Request) (*authz.Principal, error)

// CurrentPrincipal implements Provider
func (f ProviderFunc) CurrentPrincipal(r *http.Request) (*authz.Principal, error) {
	return f(r)
}

// Chain tries providers in order and returns the first principal found.
// An error from any provider stops the chain; a rejected credential never
// falls through to a weaker one.
type Chain []Provider

// CurrentPrincipal implements Provider
func (c Chain) CurrentPrincipal(r *http.Request) (*authz.Principal, error) {
	for _, p := range c {
		principal, err := p.CurrentPrincipal(r)
		if err != nil {
			return nil, err
		}
		if principal != nil {
			return principal, nil
		}
	}
	return nil, nil
}

// Anonymous never resolves a principal
var Anonymous Provider = ProviderFunc(func(*http.Request) (*authz.Principal, error) {
	return nil, nil
})
