package handlers

import (
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/utils"
)

// RuntimeSettings is the non-secret part of the running configuration
type RuntimeSettings struct {
	Environment      string `json:"environment"`
	TokenAuthEnabled bool   `json:"token_auth_enabled"`
	RoleRefresh      bool   `json:"role_refresh"`
	AuditEnabled     bool   `json:"audit_enabled"`
}

// RoleInfo pairs a role with its rank
type RoleInfo struct {
	Role authz.Role `json:"role"`
	Rank int        `json:"rank"`
}

// SystemSettingsResponse is returned by GET /api/v1/system-settings
type SystemSettingsResponse struct {
	RuntimeSettings
	Roles     []RoleInfo `json:"roles"`
	Resources []string   `json:"resources"`
}

// SystemSettingsHandler exposes a read-only settings summary
type SystemSettingsHandler struct {
	settings   RuntimeSettings
	authorizer *authz.Authorizer
}

// NewSystemSettingsHandler creates a SystemSettingsHandler
func NewSystemSettingsHandler(settings RuntimeSettings, authorizer *authz.Authorizer) *SystemSettingsHandler {
	return &SystemSettingsHandler{settings: settings, authorizer: authorizer}
}

// HandleGet handles GET /api/v1/system-settings
func (h *SystemSettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	roles := make([]RoleInfo, 0, len(authz.Roles()))
	for _, role := range authz.Roles() {
		rank, err := authz.RankOf(role)
		if err != nil {
			return err
		}
		roles = append(roles, RoleInfo{Role: role, Rank: rank})
	}

	return utils.WriteOK(w, SystemSettingsResponse{
		RuntimeSettings: h.settings,
		Roles:           roles,
		Resources:       h.authorizer.Matrix().Resources(),
	})
}
