package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/session"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

// Fixed bodies written by the guard. Clients match on them byte for byte.
const (
	MessageUnauthorized = "Unauthorized - authentication required"
	MessageForbidden    = "Forbidden - insufficient permissions"
	MessageInternal     = "Internal server error"
)

// HandlerFunc is a request handler that reports failure by returning an error
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Decision describes one terminal guard outcome
type Decision struct {
	Outcome   authz.Outcome
	Principal *authz.Principal
	Check     string
	Method    string
	Path      string
	RequestID string
	IPAddress string
	UserAgent string
	Err       error
}

// DecisionRecorder receives every guard decision. Implementations must not block.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d Decision)
}

// RoleGuard wraps handlers with a role or permission requirement
type RoleGuard struct {
	sessions   session.Provider
	authorizer *authz.Authorizer
	recorder   DecisionRecorder
	logger     *zap.Logger
}

// NewRoleGuard creates a RoleGuard. recorder may be nil. A nil provider
// treats every request as unauthenticated.
func NewRoleGuard(sessions session.Provider, authorizer *authz.Authorizer, recorder DecisionRecorder, logger *zap.Logger) *RoleGuard {
	if sessions == nil {
		sessions = session.Anonymous
	}
	if authorizer == nil {
		authorizer = authz.NewAuthorizer(nil)
	}
	return &RoleGuard{
		sessions:   sessions,
		authorizer: authorizer,
		recorder:   recorder,
		logger:     logger,
	}
}

// WithRoleProtection returns a handler that resolves the principal once,
// enforces check and only then invokes h. Failures end in one of three fixed
// JSON bodies (401, 403, 500). The output of h is buffered and reaches the
// client only when h returns nil.
func (g *RoleGuard) WithRoleProtection(check authz.Check, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		principal, err := g.sessions.CurrentPrincipal(r)
		if ctx.Err() != nil {
			g.logger.Debug("request cancelled during authorization",
				zap.String("request_id", requestID),
				zap.Error(ctx.Err()))
			return
		}
		if err != nil {
			g.logger.Warn("session resolution failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			principal = nil
		}

		if !principal.Valid() {
			if principal != nil {
				g.logger.Warn("principal has unrecognised role",
					zap.String("request_id", requestID),
					zap.String("user_id", principal.ID),
					zap.String("role", string(principal.Role)))
			} else {
				g.logger.Warn("missing principal",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path))
			}
			g.record(r, authz.OutcomeUnauthenticated, nil, check, nil)
			_ = utils.WriteFixedError(w, http.StatusUnauthorized, MessageUnauthorized)
			return
		}

		if check == nil || !check.Satisfied(g.authorizer, principal) {
			g.logger.Warn("insufficient permissions",
				zap.String("request_id", requestID),
				zap.String("user_id", principal.ID),
				zap.String("role", string(principal.Role)),
				zap.String("required", describe(check)))
			g.record(r, authz.OutcomeForbidden, principal, check, nil)
			_ = utils.WriteFixedError(w, http.StatusForbidden, MessageForbidden)
			return
		}

		buf := newResponseBuffer()
		if err := invoke(h, buf, r.WithContext(WithPrincipal(ctx, principal))); err != nil {
			g.logger.Error("protected handler failed",
				zap.String("request_id", requestID),
				zap.String("user_id", principal.ID),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			g.record(r, authz.OutcomeHandlerError, principal, check, err)
			_ = utils.WriteFixedError(w, http.StatusInternalServerError, MessageInternal)
			return
		}

		g.logger.Debug("authorization passed",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.ID),
			zap.String("required", describe(check)))
		g.record(r, authz.OutcomeAuthorized, principal, check, nil)

		if err := buf.flushTo(w); err != nil {
			g.logger.Warn("failed to write response",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	})
}

// Protect adapts WithRoleProtection for plain http.Handlers, for use with
// chi's r.With and r.Use.
func (g *RoleGuard) Protect(check authz.Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.WithRoleProtection(check, func(w http.ResponseWriter, r *http.Request) error {
			next.ServeHTTP(w, r)
			return nil
		})
	}
}

func invoke(h HandlerFunc, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(w, r)
}

func (g *RoleGuard) record(r *http.Request, outcome authz.Outcome, p *authz.Principal, check authz.Check, err error) {
	if g.recorder == nil {
		return
	}
	g.recorder.RecordDecision(r.Context(), Decision{
		Outcome:   outcome,
		Principal: p,
		Check:     describe(check),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: GetRequestIDFromContext(r.Context()),
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Err:       err,
	})
}

// describe labels check for logs. A nil check denies every principal.
func describe(check authz.Check) string {
	if check == nil {
		return "none"
	}
	return check.Describe()
}
