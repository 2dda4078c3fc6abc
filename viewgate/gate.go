// Package viewgate decides whether a server-rendered fragment is shown to
// the current principal. It shares the session provider and authorizer with
// the request guard so both boundaries agree.
package viewgate

import (
	"html/template"
	"io"
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/session"
	"go.uber.org/zap"
)

// Options constrains a gated fragment. The zero value shows the fragment to
// everyone. A non-nil AllowedRoles is a constraint even when empty, and an
// empty allow-list admits no one.
type Options struct {
	AllowedRoles []authz.Role
	MinimumRole  authz.Role
	RequireAuth  bool
}

func (o Options) constrained() bool {
	return o.RequireAuth || o.AllowedRoles != nil || o.MinimumRole != ""
}

// Decision selects which fragment to render
type Decision int

const (
	// Fallback renders the fallback fragment, or nothing if there is none
	Fallback Decision = iota
	// Children renders the gated fragment
	Children
)

func (d Decision) String() string {
	if d == Children {
		return "children"
	}
	return "fallback"
}

// Fragment writes a piece of rendered output
type Fragment func(w io.Writer) error

// Gate evaluates Options against the request's principal
type Gate struct {
	sessions   session.Provider
	authorizer *authz.Authorizer
	logger     *zap.Logger
}

// New creates a Gate. A nil provider resolves no principal.
func New(sessions session.Provider, authorizer *authz.Authorizer, logger *zap.Logger) *Gate {
	if sessions == nil {
		sessions = session.Anonymous
	}
	if authorizer == nil {
		authorizer = authz.NewAuthorizer(nil)
	}
	return &Gate{sessions: sessions, authorizer: authorizer, logger: logger}
}

// Decide resolves the principal once and applies opts
func (g *Gate) Decide(r *http.Request, opts Options) Decision {
	return g.DecideFor(g.Resolve(r), opts)
}

// Resolve returns the request principal for use with DecideFor, RenderFor
// and FuncMapFor, so a page with several gated blocks asks the session
// provider once.
func (g *Gate) Resolve(r *http.Request) *authz.Principal {
	return g.principal(r)
}

// DecideFor applies opts to an already resolved principal. A malformed
// principal is treated as none.
func (g *Gate) DecideFor(p *authz.Principal, opts Options) Decision {
	if !p.Valid() {
		p = nil
	}
	if p == nil && opts.constrained() {
		return Fallback
	}
	switch {
	case opts.AllowedRoles != nil:
		return choose(g.authorizer.HasAnyRole(p, opts.AllowedRoles))
	case opts.MinimumRole != "":
		return choose(g.authorizer.HasMinimumRole(p, opts.MinimumRole))
	default:
		return Children
	}
}

// Render writes children or fallback depending on the decision. A nil
// fallback writes nothing. A cancelled request renders nothing.
func (g *Gate) Render(w io.Writer, r *http.Request, opts Options, children, fallback Fragment) error {
	return g.RenderFor(w, r, g.Resolve(r), opts, children, fallback)
}

// RenderFor is Render for an already resolved principal
func (g *Gate) RenderFor(w io.Writer, r *http.Request, p *authz.Principal, opts Options, children, fallback Fragment) error {
	decision := g.DecideFor(p, opts)
	if err := r.Context().Err(); err != nil {
		return err
	}

	fragment := fallback
	if decision == Children {
		fragment = children
	}
	if fragment == nil {
		return nil
	}
	return fragment(w)
}

// principal returns the request principal, or nil when it is absent,
// unresolvable or carries an unknown role.
func (g *Gate) principal(r *http.Request) *authz.Principal {
	p, err := g.sessions.CurrentPrincipal(r)
	if err != nil {
		g.logger.Debug("session resolution failed while gating view", zap.Error(err))
		return nil
	}
	if r.Context().Err() != nil || !p.Valid() {
		return nil
	}
	return p
}

func choose(ok bool) Decision {
	if ok {
		return Children
	}
	return Fallback
}

// Template renders the named template with data
func Template(t *template.Template, name string, data interface{}) Fragment {
	return func(w io.Writer) error {
		return t.ExecuteTemplate(w, name, data)
	}
}

// HTML writes trusted markup as-is
func HTML(markup template.HTML) Fragment {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, string(markup))
		return err
	}
}
