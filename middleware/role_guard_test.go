package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/session"
	"go.uber.org/zap"
)

const (
	bodyUnauthorized = "{\"error\":\"Unauthorized - authentication required\"}\n"
	bodyForbidden    = "{\"error\":\"Forbidden - insufficient permissions\"}\n"
	bodyInternal     = "{\"error\":\"Internal server error\"}\n"
)

type MockDecisionRecorder struct {
	mock.Mock
}

func (m *MockDecisionRecorder) RecordDecision(ctx context.Context, d Decision) {
	m.Called(ctx, d)
}

// fakeSessions returns a fixed principal and counts calls
type fakeSessions struct {
	principal *authz.Principal
	err       error
	calls     int
}

func (f *fakeSessions) CurrentPrincipal(*http.Request) (*authz.Principal, error) {
	f.calls++
	return f.principal, f.err
}

// countingHandler records invocations and the request it was called with
type countingHandler struct {
	calls int
	last  *http.Request
	fn    HandlerFunc
}

func (c *countingHandler) serve(w http.ResponseWriter, r *http.Request) error {
	c.calls++
	c.last = r
	if c.fn != nil {
		return c.fn(w, r)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
	return nil
}

func newGuard(p *authz.Principal) (*RoleGuard, *fakeSessions) {
	sessions := &fakeSessions{principal: p}
	return NewRoleGuard(sessions, authz.NewAuthorizer(nil), nil, zap.NewNop()), sessions
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func allChecks() map[string]authz.Check {
	return map[string]authz.Check{
		"role":        authz.RequireRole(authz.RoleAdmin),
		"minimumRole": authz.RequireMinimumRole(authz.RoleReadOnly),
		"roles":       authz.RequireAnyRole(authz.RoleStandardUser),
		"permission":  authz.RequirePermission(authz.ResourceDocument, authz.ActionRead),
	}
}

func TestWithRoleProtection_Unauthenticated(t *testing.T) {
	for name, check := range allChecks() {
		t.Run(name, func(t *testing.T) {
			guard, sessions := newGuard(nil)
			h := &countingHandler{}

			rec := serve(guard.WithRoleProtection(check, h.serve), httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, bodyUnauthorized, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, 0, h.calls)
			assert.Equal(t, 1, sessions.calls)
		})
	}
}

func TestWithRoleProtection_NilProviderIsUnauthenticated(t *testing.T) {
	guard := NewRoleGuard(nil, nil, nil, zap.NewNop())
	h := &countingHandler{}

	rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RoleReadOnly), h.serve),
		httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, bodyUnauthorized, rec.Body.String())
	assert.Equal(t, 0, h.calls)
}

func TestWithRoleProtection_ProviderErrorIsUnauthenticated(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("session store unreachable")}
	guard := NewRoleGuard(sessions, nil, nil, zap.NewNop())
	h := &countingHandler{}

	rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RoleReadOnly), h.serve),
		httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, bodyUnauthorized, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "unreachable")
	assert.Equal(t, 0, h.calls)
}

func TestWithRoleProtection_MalformedRoleIsUnauthenticated(t *testing.T) {
	for _, role := range []authz.Role{"", "admin", "ROOT"} {
		guard, _ := newGuard(&authz.Principal{ID: "1", Role: role})
		h := &countingHandler{}

		rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RoleReadOnly), h.serve),
			httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "role %q", role)
		assert.Equal(t, 0, h.calls)
	}
}

func TestWithRoleProtection_Forbidden(t *testing.T) {
	tests := []struct {
		name  string
		role  authz.Role
		check authz.Check
	}{
		{"below minimum", authz.RoleStandardUser, authz.RequireMinimumRole(authz.RolePowerUser)},
		{"higher rank fails exact role", authz.RoleAdmin, authz.RequireRole(authz.RoleStandardUser)},
		{"not in allow list", authz.RolePowerUser, authz.RequireAnyRole(authz.RoleReadOnly, authz.RoleAdmin)},
		{"unknown resource", authz.RolePowerUser, authz.RequirePermission("batch-import", authz.ActionRead)},
		{"nil check", authz.RoleAdmin, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, _ := newGuard(&authz.Principal{ID: "1", Role: tt.role})
			h := &countingHandler{}

			rec := serve(guard.WithRoleProtection(tt.check, h.serve), httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, bodyForbidden, rec.Body.String())
			assert.Equal(t, 0, h.calls)
		})
	}
}

func TestWithRoleProtection_PassThrough(t *testing.T) {
	guard, sessions := newGuard(&authz.Principal{ID: "1", Role: authz.RolePowerUser})
	h := &countingHandler{fn: func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Report", "daily")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "a,b\n1,2\n")
		return nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/reports?day=1", strings.NewReader("payload"))
	req.Header.Set("X-Trace", "abc")
	rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RolePowerUser), h.serve), req)

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 1, sessions.calls)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "a,b\n1,2\n", rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "daily", rec.Header().Get("X-Report"))

	require.NotNil(t, h.last)
	assert.Same(t, req.Body, h.last.Body)
	assert.Same(t, req.URL, h.last.URL)
	assert.Equal(t, req.Method, h.last.Method)
	assert.Equal(t, "abc", h.last.Header.Get("X-Trace"))
	assert.Equal(t, &authz.Principal{ID: "1", Role: authz.RolePowerUser}, GetPrincipalFromContext(h.last.Context()))
}

func TestWithRoleProtection_ImplicitOK(t *testing.T) {
	guard, _ := newGuard(&authz.Principal{ID: "1", Role: authz.RoleAdmin})

	rec := serve(guard.WithRoleProtection(authz.RequireRole(authz.RoleAdmin), func(w http.ResponseWriter, r *http.Request) error {
		return nil
	}), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWithRoleProtection_HandlerError(t *testing.T) {
	guard, _ := newGuard(&authz.Principal{ID: "1", Role: authz.RoleAdmin})
	h := &countingHandler{fn: func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("X-Partial", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "half written")
		return errors.New("pq: relation \"secrets\" does not exist")
	}}

	rec := serve(guard.WithRoleProtection(authz.RequireRole(authz.RoleAdmin), h.serve), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, bodyInternal, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secrets")
	assert.NotContains(t, rec.Body.String(), "half written")
	assert.Empty(t, rec.Header().Get("X-Partial"))
}

func TestWithRoleProtection_HandlerPanic(t *testing.T) {
	guard, _ := newGuard(&authz.Principal{ID: "1", Role: authz.RoleAdmin})

	rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RoleAdmin), func(w http.ResponseWriter, r *http.Request) error {
		panic("nil map write in export")
	}), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, bodyInternal, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "nil map")
}

func TestWithRoleProtection_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := session.ProviderFunc(func(*http.Request) (*authz.Principal, error) {
		cancel()
		return &authz.Principal{ID: "1", Role: authz.RoleAdmin}, nil
	})
	guard := NewRoleGuard(sessions, nil, nil, zap.NewNop())
	h := &countingHandler{}

	rec := serve(guard.WithRoleProtection(authz.RequireRole(authz.RoleAdmin), h.serve),
		httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	assert.Equal(t, 0, h.calls)
	assert.Empty(t, rec.Body.String())
	assert.False(t, rec.Flushed)
}

func TestWithRoleProtection_PowerUserScenarios(t *testing.T) {
	principal := &authz.Principal{ID: "1", Role: authz.RolePowerUser}

	t.Run("minimum POWER_USER passes", func(t *testing.T) {
		guard, _ := newGuard(principal)
		h := &countingHandler{}
		rec := serve(guard.WithRoleProtection(authz.RequireMinimumRole(authz.RolePowerUser), h.serve), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, h.calls)
	})

	t.Run("exact ADMIN forbidden", func(t *testing.T) {
		guard, _ := newGuard(principal)
		h := &countingHandler{}
		rec := serve(guard.WithRoleProtection(authz.RequireRole(authz.RoleAdmin), h.serve), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 0, h.calls)
	})
}

func TestWithRoleProtection_AbsenceBeatsRoleMismatch(t *testing.T) {
	guard, _ := newGuard(nil)
	h := &countingHandler{}

	rec := serve(guard.WithRoleProtection(authz.RequireAnyRole(authz.RoleStandardUser), h.serve), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, bodyUnauthorized, rec.Body.String())
	assert.Equal(t, 0, h.calls)
}

func TestWithRoleProtection_RecordsDecisions(t *testing.T) {
	tests := []struct {
		name      string
		principal *authz.Principal
		fn        HandlerFunc
		want      authz.Outcome
	}{
		{"unauthenticated", nil, nil, authz.OutcomeUnauthenticated},
		{"forbidden", &authz.Principal{ID: "1", Role: authz.RoleReadOnly}, nil, authz.OutcomeForbidden},
		{"authorized", &authz.Principal{ID: "1", Role: authz.RoleAdmin}, nil, authz.OutcomeAuthorized},
		{"handler error", &authz.Principal{ID: "1", Role: authz.RoleAdmin}, func(http.ResponseWriter, *http.Request) error {
			return errors.New("boom")
		}, authz.OutcomeHandlerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := new(MockDecisionRecorder)
			recorder.On("RecordDecision", mock.Anything, mock.MatchedBy(func(d Decision) bool {
				return d.Outcome == tt.want && d.Check == "role=ADMIN" && d.Path == "/api/v1/audit/logs" && d.RequestID != ""
			})).Once()

			guard := NewRoleGuard(&fakeSessions{principal: tt.principal}, nil, recorder, zap.NewNop())
			h := &countingHandler{fn: tt.fn}
			handler := chimw.RequestID(guard.WithRoleProtection(authz.RequireRole(authz.RoleAdmin), h.serve))

			serve(handler, httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs", nil))

			recorder.AssertExpectations(t)
		})
	}
}

func TestProtect(t *testing.T) {
	guard, _ := newGuard(&authz.Principal{ID: "1", Role: authz.RoleStandardUser})
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	})

	rec := serve(guard.Protect(authz.RequireMinimumRole(authz.RoleStandardUser))(next), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, calls)

	rec = serve(guard.Protect(authz.RequireRole(authz.RoleAdmin))(next), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestProtect_RecoversPanics(t *testing.T) {
	guard, _ := newGuard(&authz.Principal{ID: "1", Role: authz.RoleAdmin})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("kaboom"))
	})

	rec := serve(guard.Protect(authz.RequireRole(authz.RoleAdmin))(next), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, bodyInternal, rec.Body.String())
}
