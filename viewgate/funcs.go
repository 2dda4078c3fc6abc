package viewgate

import (
	"html/template"
	"net/http"
	"sync"

	"github.com/upb/refdata-portal/authz"
)

// FuncMap exposes gate predicates to html/template. The principal is
// resolved at most once per call to FuncMap, on first use.
//
//	{{if hasMinimumRole "POWER_USER"}} ... {{end}}
//	{{if can "system-settings" "read"}} ... {{end}}
func (g *Gate) FuncMap(r *http.Request) template.FuncMap {
	return g.funcMap(sync.OnceValue(func() *authz.Principal {
		return g.principal(r)
	}))
}

// FuncMapFor is FuncMap bound to an already resolved principal
func (g *Gate) FuncMapFor(p *authz.Principal) template.FuncMap {
	if !p.Valid() {
		p = nil
	}
	return g.funcMap(func() *authz.Principal { return p })
}

func (g *Gate) funcMap(current func() *authz.Principal) template.FuncMap {
	return template.FuncMap{
		"isAuthenticated": func() bool {
			return current() != nil
		},
		"hasRole": func(role string) bool {
			return g.authorizer.HasRole(current(), authz.Role(role))
		},
		"hasAnyRole": func(roles ...string) bool {
			return g.authorizer.HasAnyRole(current(), toRoles(roles))
		},
		"hasMinimumRole": func(role string) bool {
			return g.authorizer.HasMinimumRole(current(), authz.Role(role))
		},
		"can": func(resource, action string) bool {
			return g.authorizer.IsAuthorized(current(), resource, authz.Action(action))
		},
		"principal": func() *authz.Principal {
			return current()
		},
	}
}

// BaseFuncMap has the same names as FuncMap but denies everything. Templates
// are parsed with it once and re-bound per request with FuncMap.
func BaseFuncMap() template.FuncMap {
	deny := func(...string) bool { return false }
	return template.FuncMap{
		"isAuthenticated": func() bool { return false },
		"hasRole":         func(string) bool { return false },
		"hasAnyRole":      deny,
		"hasMinimumRole":  func(string) bool { return false },
		"can":             func(string, string) bool { return false },
		"principal":       func() *authz.Principal { return nil },
	}
}

func toRoles(raw []string) []authz.Role {
	roles := make([]authz.Role, len(raw))
	for i, r := range raw {
		roles[i] = authz.Role(r)
	}
	return roles
}
