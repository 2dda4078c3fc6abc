package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/services/users"
	"go.uber.org/zap"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, actor *authz.Principal, input users.CreateUserInput) (*models.User, error) {
	args := m.Called(ctx, actor, input)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserService) ChangeRole(ctx context.Context, actor *authz.Principal, id uuid.UUID, input users.ChangeRoleInput) (*models.User, error) {
	args := m.Called(ctx, actor, id, input)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestUserHandler_HandleList(t *testing.T) {
	t.Run("passes paging through", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		list := []*models.User{models.NewUser("a@example.com", "A", authz.RoleReadOnly)}
		svc.On("List", mock.Anything, 10, 20).Return(list, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users?limit=10&offset=20", nil)
		require.NoError(t, handler.HandleList(rec, req))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data UserListResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Data.Users, 1)
		assert.Equal(t, "a@example.com", body.Data.Users[0].Email)
		assert.Equal(t, 10, body.Data.Limit)
		svc.AssertExpectations(t)
	})

	t.Run("bad limit", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users?limit=ten", nil)
		require.NoError(t, handler.HandleList(rec, req))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("internal error is returned", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		svc.On("List", mock.Anything, 0, 0).Return(nil, services.WrapInternal("failed to list users", errors.New("down")))

		rec := httptest.NewRecorder()
		err := handler.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

		assert.True(t, services.IsInternalError(err))
		assert.Zero(t, rec.Body.Len())
	})
}

func TestUserHandler_HandleCreate(t *testing.T) {
	actor := &authz.Principal{ID: uuid.NewString(), Role: authz.RoleAdmin}

	t.Run("creates user", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		input := users.CreateUserInput{Email: "new@example.com", DisplayName: "New", Role: "POWER_USER"}
		created := models.NewUser(input.Email, input.DisplayName, authz.RolePowerUser)
		svc.On("Create", mock.Anything, actor, input).Return(created, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users",
			strings.NewReader(`{"email":"new@example.com","display_name":"New","role":"POWER_USER"}`))
		req = req.WithContext(contextWithPrincipal(req.Context(), actor))
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleCreate(rec, req))
		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		svc.On("Create", mock.Anything, actor, mock.Anything).Return(nil, services.ErrDuplicateEmail)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users",
			strings.NewReader(`{"email":"dup@example.com","display_name":"Dup"}`))
		req = req.WithContext(contextWithPrincipal(req.Context(), actor))
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleCreate(rec, req))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users", strings.NewReader(`{"email":`))
		require.NoError(t, handler.HandleCreate(rec, req))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUserHandler_HandleGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		user := models.NewUser("a@example.com", "A", authz.RoleReadOnly)
		svc.On("Get", mock.Anything, user.ID).Return(user, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/"+user.ID.String(), nil), "id", user.ID.String())
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		id := uuid.New()
		svc.On("Get", mock.Anything, id).Return(nil, services.ErrUserNotFound)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/"+id.String(), nil), "id", id.String())
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		handler := NewUserHandler(new(MockUserService), zap.NewNop())

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/users/nope", nil), "id", "nope")
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUserHandler_HandleChangeRole(t *testing.T) {
	actor := &authz.Principal{ID: uuid.NewString(), Role: authz.RoleAdmin}

	t.Run("changes role", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		user := models.NewUser("a@example.com", "A", authz.RolePowerUser)
		svc.On("ChangeRole", mock.Anything, actor, user.ID, users.ChangeRoleInput{Role: "POWER_USER"}).Return(user, nil)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+user.ID.String()+"/role", strings.NewReader(`{"role":"POWER_USER"}`))
		req = withURLParam(req, "id", user.ID.String())
		req = req.WithContext(contextWithPrincipal(req.Context(), actor))
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleChangeRole(rec, req))
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data models.User `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, authz.RolePowerUser, body.Data.Role)
		svc.AssertExpectations(t)
	})

	t.Run("self change conflicts", func(t *testing.T) {
		svc := new(MockUserService)
		handler := NewUserHandler(svc, zap.NewNop())
		id := uuid.MustParse(actor.ID)
		svc.On("ChangeRole", mock.Anything, actor, id, mock.Anything).Return(nil, services.ErrSelfRoleChange)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+actor.ID+"/role", strings.NewReader(`{"role":"READ_ONLY"}`))
		req = withURLParam(req, "id", actor.ID)
		req = req.WithContext(contextWithPrincipal(req.Context(), actor))
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleChangeRole(rec, req))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
