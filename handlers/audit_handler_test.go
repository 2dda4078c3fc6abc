package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"github.com/upb/refdata-portal/services"
	"go.uber.org/zap"
)

type MockAuditReader struct {
	mock.Mock
}

func (m *MockAuditReader) ListLogs(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	args := m.Called(ctx, filter)
	if l := args.Get(0); l != nil {
		return l.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditReader) GetLog(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	args := m.Called(ctx, id)
	if l := args.Get(0); l != nil {
		return l.(*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAuditHandler_HandleList(t *testing.T) {
	t.Run("parses filter", func(t *testing.T) {
		reader := new(MockAuditReader)
		handler := NewAuditHandler(reader, zap.NewNop())

		since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		want := repositories.AuditFilter{
			Action:    models.AuditActionForbidden,
			ActorID:   "u-1",
			RequestID: "req-9",
			Since:     since,
			Limit:     5,
			Offset:    10,
		}
		entry := models.NewAuditLog(models.AuditActionForbidden, "route", "/api/v1/users")
		reader.On("ListLogs", mock.Anything, want).Return([]*models.AuditLog{entry}, nil)

		req := httptest.NewRequest(http.MethodGet,
			"/api/v1/audit/logs?action=authz_forbidden&actor_id=u-1&request_id=req-9&since=2024-03-01T00:00:00Z&limit=5&offset=10", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleList(rec, req))
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data AuditListResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Data.Logs, 1)
		assert.Equal(t, models.AuditActionForbidden, body.Data.Logs[0].Action)
		reader.AssertExpectations(t)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		reader := new(MockAuditReader)
		handler := NewAuditHandler(reader, zap.NewNop())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs?until=yesterday", nil)
		require.NoError(t, handler.HandleList(rec, req))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		reader.AssertNotCalled(t, "ListLogs", mock.Anything, mock.Anything)
	})
}

func TestAuditHandler_HandleGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		reader := new(MockAuditReader)
		handler := NewAuditHandler(reader, zap.NewNop())
		entry := models.NewAuditLog(models.AuditActionUserCreated, "user", uuid.NewString())
		reader.On("GetLog", mock.Anything, entry.ID).Return(entry, nil)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs/"+entry.ID.String(), nil), "id", entry.ID.String())
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		reader := new(MockAuditReader)
		handler := NewAuditHandler(reader, zap.NewNop())
		id := uuid.New()
		reader.On("GetLog", mock.Anything, id).Return(nil, services.ErrAuditLogNotFound)

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs/"+id.String(), nil), "id", id.String())
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		handler := NewAuditHandler(new(MockAuditReader), zap.NewNop())

		req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/audit/logs/x", nil), "id", "x")
		rec := httptest.NewRecorder()

		require.NoError(t, handler.HandleGet(rec, req))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
