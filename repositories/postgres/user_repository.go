package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, email, display_name, role, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := bound(ctx, r.db, r.tx).ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapError("failed to create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("role", string(user.Role)))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(bound(ctx, r.db, r.tx).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(fmt.Sprintf("failed to get user %s", id), err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(bound(ctx, r.db, r.tx).QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapError("failed to get user by email", err)
	}
	return user, nil
}

// List retrieves users ordered by creation time with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := bound(ctx, r.db, r.tx).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// UpdateRole sets the role of a user
func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role authz.Role, updatedAt time.Time) error {
	query := `
		UPDATE users
		SET role = $2,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := bound(ctx, r.db, r.tx).ExecContext(ctx, query, id, role, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("user role updated", zap.String("id", id.String()), zap.String("role", string(role)))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}
