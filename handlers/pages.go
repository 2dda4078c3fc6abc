package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/viewgate"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// dashboardView is the data passed to the dashboard template
type dashboardView struct {
	Content    template.HTML
	AdminPanel template.HTML
}

// PageHandler renders server-side pages whose fragments are gated per principal
type PageHandler struct {
	base   *template.Template
	gate   *viewgate.Gate
	logger *zap.Logger
}

// NewPageHandler parses the embedded templates
func NewPageHandler(gate *viewgate.Gate, logger *zap.Logger) (*PageHandler, error) {
	base, err := template.New("pages").Funcs(viewgate.BaseFuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page templates: %w", err)
	}
	return &PageHandler{base: base, gate: gate, logger: logger}, nil
}

// HandleDashboard handles GET /
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := h.render(r)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("failed to render dashboard", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := page.WriteTo(w); err != nil {
		h.logger.Warn("failed to write dashboard", zap.Error(err))
	}
}

func (h *PageHandler) render(r *http.Request) (*bytes.Buffer, error) {
	tmpl, err := h.base.Clone()
	if err != nil {
		return nil, err
	}
	principal := h.gate.Resolve(r)
	tmpl = tmpl.Funcs(h.gate.FuncMapFor(principal))

	var content bytes.Buffer
	err = h.gate.RenderFor(&content, r, principal,
		viewgate.Options{RequireAuth: true},
		viewgate.Template(tmpl, "welcome", nil),
		viewgate.Template(tmpl, "sign_in", nil))
	if err != nil {
		return nil, err
	}

	var admin bytes.Buffer
	err = h.gate.RenderFor(&admin, r, principal,
		viewgate.Options{AllowedRoles: []authz.Role{authz.RoleAdmin}},
		viewgate.Template(tmpl, "admin_panel", nil),
		nil)
	if err != nil {
		return nil, err
	}

	var page bytes.Buffer
	err = tmpl.ExecuteTemplate(&page, "dashboard", dashboardView{
		Content:    template.HTML(content.String()),
		AdminPanel: template.HTML(admin.String()),
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}
