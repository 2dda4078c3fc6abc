package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"go.uber.org/zap"
)

const (
	auditColumns = `id, actor_id, actor_role, action, resource_type, resource_id,
		details, ip_address, user_agent, request_id, status_code, error_message, timestamp`

	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.ActorRole,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		nullableJSON(log.Details),
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.StatusCode,
		log.ErrorMessage,
		log.Timestamp,
	)
	if err != nil {
		return mapError("failed to insert audit log", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// GetByID retrieves an audit log by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1`

	log, err := scanAuditLog(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get audit log %s", id), err)
	}
	return log, nil
}

// List retrieves audit logs newest first, narrowed by filter
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.RequestID != "" {
		add("request_id = $%d", filter.RequestID)
	}
	if !filter.Since.IsZero() {
		add("timestamp >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("timestamp <= $%d", filter.Until)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.queryAuditLogs(ctx, query, args...)
}

func (r *AuditRepository) queryAuditLogs(ctx context.Context, query string, args ...interface{}) ([]*models.AuditLog, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}

func scanAuditLog(row rowScanner) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	var details []byte
	err := row.Scan(
		&log.ID,
		&log.ActorID,
		&log.ActorRole,
		&log.Action,
		&log.ResourceType,
		&log.ResourceID,
		&details,
		&log.IPAddress,
		&log.UserAgent,
		&log.RequestID,
		&log.StatusCode,
		&log.ErrorMessage,
		&log.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		log.Details = details
	}
	return log, nil
}
