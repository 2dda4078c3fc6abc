package handlers

import (
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/middleware"
	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

// MeResponse describes the calling principal
type MeResponse struct {
	ID          string                     `json:"id"`
	Role        authz.Role                 `json:"role"`
	Rank        int                        `json:"rank"`
	Permissions map[string]map[string]bool `json:"permissions"`
}

// AccessResponse is the result of a single permission check
type AccessResponse struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Allowed     bool   `json:"allowed"`
	Requirement string `json:"requirement"`
}

// AccessHandler exposes the caller's identity and permissions
type AccessHandler struct {
	authorizer *authz.Authorizer
	logger     *zap.Logger
}

// NewAccessHandler creates an AccessHandler
func NewAccessHandler(authorizer *authz.Authorizer, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{authorizer: authorizer, logger: logger}
}

// HandleMe handles GET /api/v1/me
func (h *AccessHandler) HandleMe(w http.ResponseWriter, r *http.Request) error {
	p := middleware.GetPrincipalFromContext(r.Context())
	if p == nil {
		return HandleServiceError(w, services.ErrUnauthorized, h.logger)
	}
	rank, err := authz.RankOf(p.Role)
	if err != nil {
		return err
	}

	matrix := h.authorizer.Matrix()
	permissions := make(map[string]map[string]bool)
	for _, resource := range matrix.Resources() {
		actions := make(map[string]bool)
		for _, action := range matrix.Actions(resource) {
			actions[string(action)] = h.authorizer.IsAuthorized(p, resource, action)
		}
		permissions[resource] = actions
	}

	return utils.WriteOK(w, MeResponse{
		ID:          p.ID,
		Role:        p.Role,
		Rank:        rank,
		Permissions: permissions,
	})
}

// HandleCheckAccess handles GET /api/v1/access?resource=&action=
func (h *AccessHandler) HandleCheckAccess(w http.ResponseWriter, r *http.Request) error {
	resource := r.URL.Query().Get("resource")
	action := r.URL.Query().Get("action")
	if resource == "" || action == "" {
		err := services.NewDomainError(services.ErrorTypeValidation, "resource and action are required", nil)
		return HandleServiceError(w, err, h.logger)
	}

	p := middleware.GetPrincipalFromContext(r.Context())
	return utils.WriteOK(w, AccessResponse{
		Resource:    resource,
		Action:      action,
		Allowed:     h.authorizer.IsAuthorized(p, resource, authz.Action(action)),
		Requirement: h.authorizer.Matrix().Requirement(resource, authz.Action(action)).String(),
	})
}
