// Package users administers portal accounts and their roles.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"github.com/upb/refdata-portal/services"
	"github.com/upb/refdata-portal/utils"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Auditor records user administration events
type Auditor interface {
	LogUserCreated(actor *authz.Principal, user *models.User) error
	LogRoleChanged(actor *authz.Principal, user *models.User, from authz.Role) error
}

// RoleInvalidator drops cached roles after a change
type RoleInvalidator interface {
	Forget(id string)
}

// CreateUserInput is the payload for creating a user
type CreateUserInput struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=255"`
	Role        string `json:"role" validate:"omitempty,role"`
}

// ChangeRoleInput is the payload for changing a user's role
type ChangeRoleInput struct {
	Role string `json:"role" validate:"required,role"`
}

// Service manages users
type Service struct {
	repo        repositories.UserRepository
	txMgr       repositories.TransactionManager
	auditor     Auditor
	invalidator RoleInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a user service. auditor and invalidator may be nil.
func NewService(repo repositories.UserRepository, txMgr repositories.TransactionManager, auditor Auditor, invalidator RoleInvalidator, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		txMgr:       txMgr,
		auditor:     auditor,
		invalidator: invalidator,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a user. A missing role becomes the default role.
func (s *Service) Create(ctx context.Context, actor *authz.Principal, input CreateUserInput) (*models.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	user := models.NewUser(input.Email, input.DisplayName, authz.Role(input.Role))
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateEmail
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
		zap.String("actor_id", actorID(actor)))

	if s.auditor != nil {
		if err := s.auditor.LogUserCreated(actor, user); err != nil {
			s.logger.Warn("failed to audit user creation", zap.Error(err))
		}
	}
	return user, nil
}

// List returns a page of users. Out of range paging values are clamped.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list users", err)
	}
	return users, nil
}

// Get returns one user
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to get user", err)
	}
	return user, nil
}

// ChangeRole assigns a new role to a user. Principals cannot change their own role.
func (s *Service) ChangeRole(ctx context.Context, actor *authz.Principal, id uuid.UUID, input ChangeRoleInput) (*models.User, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if actor != nil && actor.ID == id.String() {
		return nil, services.ErrSelfRoleChange
	}
	newRole := authz.Role(input.Role)

	var previous authz.Role
	user, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		repo := s.repo.WithTx(tx)
		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		previous = user.Role
		if user.Role == newRole {
			return user, nil
		}
		user.Role = newRole
		user.UpdatedAt = s.now()
		if err := repo.UpdateRole(ctx, id, newRole, user.UpdatedAt); err != nil {
			return nil, err
		}
		return user, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to change user role", err)
	}

	if previous == newRole {
		return user, nil
	}

	if s.invalidator != nil {
		s.invalidator.Forget(id.String())
	}

	s.logger.Info("user role changed",
		zap.String("user_id", id.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(newRole)),
		zap.String("actor_id", actorID(actor)))

	if s.auditor != nil {
		if err := s.auditor.LogRoleChanged(actor, user, previous); err != nil {
			s.logger.Warn("failed to audit role change", zap.Error(err))
		}
	}
	return user, nil
}

// LookupRole returns the stored role for a principal id. Ids that are not
// UUIDs never match a user.
func (s *Service) LookupRole(ctx context.Context, id string) (authz.Role, bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return "", false, nil
	}
	user, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return user.Role, true, nil
}

func validateInput(input interface{}) error {
	if err := utils.ValidateStruct(input); err != nil {
		domainErr := services.NewDomainError(services.ErrorTypeValidation, "invalid input", err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return domainErr
	}
	return nil
}

func actorID(p *authz.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
