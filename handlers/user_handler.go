package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/middleware"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/services/users"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

// UserService is the subset of the user service used over HTTP
type UserService interface {
	Create(ctx context.Context, actor *authz.Principal, input users.CreateUserInput) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	ChangeRole(ctx context.Context, actor *authz.Principal, id uuid.UUID, input users.ChangeRoleInput) (*models.User, error)
}

// UserHandler handles user administration requests
type UserHandler struct {
	service UserService
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// UserListResponse wraps a page of users
type UserListResponse struct {
	Users  []*models.User `json:"users"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// HandleList handles GET /api/v1/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	list, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	return utils.WriteOK(w, UserListResponse{Users: list, Limit: limit, Offset: offset})
}

// HandleCreate handles POST /api/v1/users
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) error {
	var input users.CreateUserInput
	if err := decodeJSON(w, r, &input); err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	actor := middleware.GetPrincipalFromContext(r.Context())
	user, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	h.logger.Info("user created via API",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))
	return utils.WriteCreated(w, user)
}

// HandleGet handles GET /api/v1/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	id, err := userIDParam(r)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}
	return utils.WriteOK(w, user)
}

// HandleChangeRole handles PUT /api/v1/users/{id}/role
func (h *UserHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) error {
	id, err := userIDParam(r)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	var input users.ChangeRoleInput
	if err := decodeJSON(w, r, &input); err != nil {
		return HandleServiceError(w, err, h.logger)
	}

	actor := middleware.GetPrincipalFromContext(r.Context())
	user, err := h.service.ChangeRole(r.Context(), actor, id, input)
	if err != nil {
		return HandleServiceError(w, err, h.logger)
	}
	return utils.WriteOK(w, user)
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, services.NewDomainError(services.ErrorTypeValidation, "invalid user ID", err)
	}
	return id, nil
}
