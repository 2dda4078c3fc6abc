package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/refdata-portal/authz"
)

// User represents a back-office account and its current role
type User struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	DisplayName string     `json:"display_name" db:"display_name"`
	Role        authz.Role `json:"role" db:"role"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance. An empty role falls back to the default role.
func NewUser(email, displayName string, role authz.Role) *User {
	if role == "" {
		role = authz.DefaultRole()
	}
	now := time.Now().UTC()
	return &User{
		ID:          uuid.New(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Principal returns the authorization identity for the user
func (u *User) Principal() *authz.Principal {
	return &authz.Principal{ID: u.ID.String(), Role: u.Role}
}

// IsAdmin returns true if the user holds the ADMIN role
func (u *User) IsAdmin() bool {
	return u.Role == authz.RoleAdmin
}
