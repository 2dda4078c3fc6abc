package app

import (
	"context"
	"fmt"

	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/config"
	"github.com/upb/refdata-portal/identity"
	"github.com/upb/refdata-portal/middleware"
	"github.com/upb/refdata-portal/repositories"
	"github.com/upb/refdata-portal/repositories/postgres"
	"github.com/upb/refdata-portal/services/audit"
	"github.com/upb/refdata-portal/services/users"
	"github.com/upb/refdata-portal/session"
	"github.com/upb/refdata-portal/viewgate"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	// Authorization
	Authorizer *authz.Authorizer
	Sessions   session.Provider
	Cookies    *session.CookieProvider
	RoleCache  *session.RoleCache
	Guard      *middleware.RoleGuard
	Gate       *viewgate.Gate

	// Services
	AuditService *audit.AuditService
	UserService  *users.Service

	stopCleanup chan struct{}
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, logger, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires dependencies over an existing repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := factory.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	deps.initRepositories()

	if err := deps.initAuthorizer(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize authorizer: %w", err)
	}

	if err := deps.initAudit(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.initSessions(cfg); err != nil {
		deps.stopAudit()
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	var recorder middleware.DecisionRecorder
	if cfg.Audit.Enabled {
		recorder = deps.AuditService
	}
	deps.Guard = middleware.NewRoleGuard(deps.Sessions, deps.Authorizer, recorder, logger)
	deps.Gate = viewgate.New(deps.Sessions, deps.Authorizer, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAuthorizer(cfg *config.Config) error {
	if cfg.Authorization.PolicyFile == "" {
		d.Authorizer = authz.NewAuthorizer(nil)
		d.Logger.Info("using built-in permission matrix")
		return nil
	}

	matrix, err := authz.LoadMatrixFile(cfg.Authorization.PolicyFile)
	if err != nil {
		return err
	}
	d.Authorizer = authz.NewAuthorizer(matrix)
	d.Logger.Info("loaded permission matrix",
		zap.String("file", cfg.Authorization.PolicyFile),
		zap.Strings("resources", matrix.Resources()))
	return nil
}

// initAudit creates the audit service. It always serves reads; workers only
// run when auditing is enabled.
func (d *Dependencies) initAudit(cfg *config.Config) error {
	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:    cfg.Audit.BufferSize,
		WorkerCount:   cfg.Audit.Workers,
		RecordGranted: cfg.Audit.RecordGranted,
	})
	if !cfg.Audit.Enabled {
		d.Logger.Warn("audit trail disabled")
		return nil
	}
	return d.AuditService.Start()
}

// initSessions builds the provider chain: bearer token first, then the
// session cookie, optionally refreshed from the user store.
func (d *Dependencies) initSessions(cfg *config.Config) error {
	store, err := session.NewCookieStore(cfg.Session.Key, cfg.Session.Domain, cfg.Session.Secure, d.Logger)
	if err != nil {
		return err
	}
	d.Cookies = session.NewCookieProvider(store, cfg.Session.Name, d.Logger)

	var chain session.Chain
	if cfg.Token.Enabled() {
		validator := identity.NewValidator(identity.Config{
			Issuer:      cfg.Token.Issuer,
			Audience:    cfg.Token.Audience,
			JWKSURL:     cfg.Token.JWKSURL,
			CacheTTL:    cfg.Token.CacheTTL,
			HTTPTimeout: cfg.Token.HTTPTimeout,
		})
		chain = append(chain, session.NewTokenProvider(validator))
		d.Logger.Info("bearer token authentication enabled",
			zap.String("issuer", cfg.Token.Issuer))
	}
	chain = append(chain, d.Cookies)

	var auditor users.Auditor
	if cfg.Audit.Enabled {
		auditor = d.AuditService
	}

	if !cfg.Authorization.RefreshRoles {
		d.Sessions = chain
		d.UserService = users.NewService(d.Users, d.TxManager, auditor, nil, d.Logger)
		return nil
	}

	d.RoleCache = session.NewRoleCache(cfg.Authorization.RoleCacheSize, cfg.Authorization.RoleCacheTTL)
	if every := cfg.Authorization.RoleCacheCleanupEvery; every > 0 {
		d.stopCleanup = make(chan struct{})
		go d.RoleCache.StartCleanupWorker(every, d.stopCleanup)
	}

	var userService *users.Service
	lookup := session.RoleLookupFunc(func(ctx context.Context, id string) (authz.Role, bool, error) {
		return userService.LookupRole(ctx, id)
	})
	refreshing := session.NewRefreshingProvider(chain, lookup, d.RoleCache, d.Logger)
	userService = users.NewService(d.Users, d.TxManager, auditor, refreshing, d.Logger)

	d.Sessions = refreshing
	d.UserService = userService
	return nil
}

func (d *Dependencies) stopAudit() {
	if d.AuditService == nil || !d.Config.Audit.Enabled {
		return
	}
	if err := d.AuditService.Stop(d.Config.Audit.ShutdownTimeout); err != nil {
		d.Logger.Warn("audit service did not stop cleanly", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}

	// Drain queued audit entries before the pool closes
	d.stopAudit()

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
