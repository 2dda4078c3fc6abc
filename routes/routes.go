package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/refdata-portal/app"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/handlers"
	"github.com/upb/refdata-portal/observability"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) (http.Handler, error) {
	pages, err := handlers.NewPageHandler(deps.Gate, deps.Logger)
	if err != nil {
		return nil, err
	}

	health := handlers.NewHealthHandler(healthChecks(deps), deps.Logger)
	access := handlers.NewAccessHandler(deps.Authorizer, deps.Logger)
	settings := handlers.NewSystemSettingsHandler(handlers.RuntimeSettings{
		Environment:      deps.Config.Environment,
		TokenAuthEnabled: deps.Config.Token.Enabled(),
		RoleRefresh:      deps.Config.Authorization.RefreshRoles,
		AuditEnabled:     deps.Config.Audit.Enabled,
	}, deps.Authorizer)
	userHandler := handlers.NewUserHandler(deps.UserService, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.AuditService, deps.Logger)

	guard := deps.Guard

	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Server-rendered dashboard; fragments are gated per principal
	r.Get("/", pages.HandleDashboard)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/me",
			guard.WithRoleProtection(authz.RequireAnyRole(authz.Roles()...), access.HandleMe))
		r.Method(http.MethodGet, "/access",
			guard.WithRoleProtection(authz.RequireAnyRole(authz.Roles()...), access.HandleCheckAccess))
		r.Method(http.MethodGet, "/system-settings",
			guard.WithRoleProtection(authz.RequirePermission(authz.ResourceSystemSettings, authz.ActionRead), settings.HandleGet))

		// User administration: browsing from POWER_USER up, changes by ADMIN only
		r.Route("/users", func(r chi.Router) {
			browse := authz.RequireMinimumRole(authz.RolePowerUser)
			manage := authz.RequireRole(authz.RoleAdmin)

			r.Method(http.MethodGet, "/", guard.WithRoleProtection(browse, userHandler.HandleList))
			r.Method(http.MethodPost, "/", guard.WithRoleProtection(manage, userHandler.HandleCreate))
			r.Method(http.MethodGet, "/{id}", guard.WithRoleProtection(browse, userHandler.HandleGet))
			r.Method(http.MethodPut, "/{id}/role", guard.WithRoleProtection(manage, userHandler.HandleChangeRole))
		})

		// Audit logs (require admin role)
		r.Route("/audit", func(r chi.Router) {
			admin := authz.RequireRole(authz.RoleAdmin)
			r.Method(http.MethodGet, "/logs", guard.WithRoleProtection(admin, auditHandler.HandleList))
			r.Method(http.MethodGet, "/logs/{id}", guard.WithRoleProtection(admin, auditHandler.HandleGet))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r, nil
}

func healthChecks(deps *app.Dependencies) map[string]handlers.HealthChecker {
	checks := map[string]handlers.HealthChecker{}
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.RepoFactory != nil {
		if auditDB := deps.RepoFactory.GetAuditDB(); auditDB != nil {
			checks["audit_database"] = auditDB
		}
	}
	return checks
}
