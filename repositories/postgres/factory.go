package postgres

import (
	"context"

	"github.com/upb/refdata-portal/config"
	"github.com/upb/refdata-portal/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for audit logs
	logger  *zap.Logger
}

// NewRepositoryFactory opens the main pool and, when configured, the audit pool
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// NewRepositoryFactoryFromDB builds a factory over existing pools. auditDB may be nil.
func NewRepositoryFactoryFromDB(db, auditDB *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, auditDB: auditDB, logger: logger}
}

// InitSchema creates the tables on the main database and, when separate, the audit database
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	if err := f.db.InitSchema(ctx); err != nil {
		return err
	}
	if f.auditDB != nil {
		return f.auditDB.InitAuditSchema(ctx)
	}
	return nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	auditDB := f.db
	if f.auditDB != nil {
		auditDB = f.auditDB
	}
	return &repositories.Repositories{
		Users:     NewUserRepository(f.db, f.logger),
		AuditLogs: NewAuditRepository(auditDB, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the main database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// GetAuditDB returns the separate audit database, or nil when audit logs share the main one
func (f *RepositoryFactory) GetAuditDB() *DB {
	return f.auditDB
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}
