package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

// AuditReader reads recorded audit entries
type AuditReader interface {
	ListLogs(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error)
	GetLog(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)
}

// AuditHandler serves the audit trail
type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger}
}

// AuditListResponse wraps a page of audit entries
type AuditListResponse struct {
	Logs   []*models.AuditLog `json:"logs"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

// HandleList handles GET /api/v1/audit/logs
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	filter, err := parseAuditFilter(r)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	logs, err := h.reader.ListLogs(r.Context(), filter)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	return utils.WriteOK(w, AuditListResponse{Logs: logs, Limit: filter.Limit, Offset: filter.Offset})
}

// HandleGet handles GET /api/v1/audit/logs/{id}
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return HandleServiceError(w,
			services.NewDomainError(services.ErrorTypeValidation, "invalid audit log ID", err), h.logger)
	}

	entry, err := h.reader.GetLog(r.Context(), id)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}
	return utils.WriteOK(w, entry)
}

func parseAuditFilter(r *http.Request) (repositories.AuditFilter, error) {
	q := r.URL.Query()
	filter := repositories.AuditFilter{
		Action:    models.AuditAction(q.Get("action")),
		ActorID:   q.Get("actor_id"),
		RequestID: q.Get("request_id"),
	}

	var err error
	if filter.Since, err = queryTime(r, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

// queryTime parses an optional RFC 3339 timestamp
func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, services.NewDomainError(services.ErrorTypeValidation, key+" must be an RFC 3339 timestamp", err)
	}
	return t.UTC(), nil
}
