package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/refdata-portal/app"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/config"
	"github.com/upb/refdata-portal/middleware"
	"github.com/upb/refdata-portal/repositories/postgres"
	"go.uber.org/zap"
)

type testServer struct {
	handler http.Handler
	deps    *app.Dependencies
	mock    sqlmock.Sqlmock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))

	cfg := &config.Config{
		Environment: "development",
		Server:      config.ServerConfig{AllowedOrigins: []string{"http://localhost:*"}},
		Session: config.SessionConfig{
			Name: "refdata-session",
			Key:  "0123456789abcdef0123456789abcdef",
		},
	}
	factory := postgres.NewRepositoryFactoryFromDB(postgres.WrapDB(sqlDB, zap.NewNop()), nil, zap.NewNop())

	deps, err := app.NewDependenciesWithFactory(context.Background(), cfg, zap.NewNop(), factory)
	require.NoError(t, err)

	handler, err := SetupRoutes(deps)
	require.NoError(t, err)

	return &testServer{handler: handler, deps: deps, mock: mock}
}

// cookieFor signs a session cookie carrying role
func (s *testServer) cookieFor(t *testing.T, id string, role authz.Role) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	err := s.deps.Cookies.Save(rec, httptest.NewRequest(http.MethodGet, "/", nil), authz.Principal{ID: id, Role: role})
	require.NoError(t, err)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func (s *testServer) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func fixedError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body, 1)
	return body["error"].(string)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"endpoint not found"}`, rec.Body.String())
}

func TestProtectedRoutes(t *testing.T) {
	s := newTestServer(t)
	id := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		role       authz.Role
		wantStatus int
	}{
		{"me requires a session", http.MethodGet, "/api/v1/me", "", "", http.StatusUnauthorized},
		{"me for read only", http.MethodGet, "/api/v1/me", "", authz.RoleReadOnly, http.StatusOK},
		{"unknown role is unauthenticated", http.MethodGet, "/api/v1/me", "", "SUPERUSER", http.StatusUnauthorized},
		{"access check", http.MethodGet, "/api/v1/access?resource=document&action=read", "", authz.RoleStandardUser, http.StatusOK},
		{"settings denied below admin", http.MethodGet, "/api/v1/system-settings", "", authz.RolePowerUser, http.StatusForbidden},
		{"settings for admin", http.MethodGet, "/api/v1/system-settings", "", authz.RoleAdmin, http.StatusOK},
		{"user list denied to standard user", http.MethodGet, "/api/v1/users", "", authz.RoleStandardUser, http.StatusForbidden},
		{"user create denied to power user", http.MethodPost, "/api/v1/users", `{"email":"x@example.com","display_name":"X"}`, authz.RolePowerUser, http.StatusForbidden},
		{"role change denied to power user", http.MethodPut, "/api/v1/users/" + uuid.NewString() + "/role", `{"role":"ADMIN"}`, authz.RolePowerUser, http.StatusForbidden},
		{"audit denied to power user", http.MethodGet, "/api/v1/audit/logs", "", authz.RolePowerUser, http.StatusForbidden},
		{"validation reaches the client", http.MethodPost, "/api/v1/users", `{"email":"not-an-email","display_name":"X"}`, authz.RoleAdmin, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookie *http.Cookie
			if tt.role != "" {
				cookie = s.cookieFor(t, id, tt.role)
			}

			rec := s.do(t, tt.method, tt.path, tt.body, cookie)
			assert.Equal(t, tt.wantStatus, rec.Code)

			switch tt.wantStatus {
			case http.StatusUnauthorized:
				assert.Equal(t, middleware.MessageUnauthorized, fixedError(t, rec))
			case http.StatusForbidden:
				assert.Equal(t, middleware.MessageForbidden, fixedError(t, rec))
			}
		})
	}
}

func TestUserListing(t *testing.T) {
	t.Run("power user lists users", func(t *testing.T) {
		s := newTestServer(t)
		now := time.Now().UTC()
		s.mock.ExpectQuery(`FROM users`).
			WithArgs(50, 0).
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "role", "created_at", "updated_at"}).
				AddRow(uuid.NewString(), "a@example.com", "A", "READ_ONLY", now, now))

		rec := s.do(t, http.MethodGet, "/api/v1/users", "", s.cookieFor(t, uuid.NewString(), authz.RolePowerUser))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data struct {
				Users []struct {
					Email string `json:"email"`
					Role  string `json:"role"`
				} `json:"users"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Data.Users, 1)
		assert.Equal(t, "READ_ONLY", body.Data.Users[0].Role)
		assert.NoError(t, s.mock.ExpectationsWereMet())
	})

	t.Run("storage failure yields the fixed 500 body", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(`FROM users`).WillReturnError(errors.New("connection reset"))

		rec := s.do(t, http.MethodGet, "/api/v1/users", "", s.cookieFor(t, uuid.NewString(), authz.RoleAdmin))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, middleware.MessageInternal, fixedError(t, rec))
	})
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `id="sign-in"`)
	})

	t.Run("admin", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/", "", s.cookieFor(t, "admin-1", authz.RoleAdmin))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `id="admin-panel"`)
	})
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
