package authz

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role is outside the closed role set
var ErrUnknownRole = errors.New("unknown role")

// Role identifies a privilege tier. Valid values are the constants below.
type Role string

const (
	RoleReadOnly     Role = "READ_ONLY"
	RoleStandardUser Role = "STANDARD_USER"
	RolePowerUser    Role = "POWER_USER"
	RoleAdmin        Role = "ADMIN"
)

// orderedRoles lists every role from least to most privileged.
// Ranks are derived from this order and never change at runtime.
var orderedRoles = []Role{
	RoleReadOnly,
	RoleStandardUser,
	RolePowerUser,
	RoleAdmin,
}

var roleRanks = func() map[Role]int {
	ranks := make(map[Role]int, len(orderedRoles))
	for i, role := range orderedRoles {
		ranks[role] = i + 1
	}
	return ranks
}()

// RankOf returns the privilege rank of a role. Higher is more privileged.
func RankOf(role Role) (int, error) {
	rank, ok := roleRanks[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
	return rank, nil
}

// IsValidRole reports whether raw is exactly one of the role identifiers.
// Matching is case-sensitive and performs no normalization.
func IsValidRole(raw string) bool {
	_, ok := roleRanks[Role(raw)]
	return ok
}

// ParseRole converts raw into a Role, rejecting anything outside the closed set
func ParseRole(raw string) (Role, error) {
	if !IsValidRole(raw) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return Role(raw), nil
}

// DefaultRole returns the role assigned to new principals absent other context
func DefaultRole() Role {
	return RoleStandardUser
}

// Roles returns all roles in ascending rank order
func Roles() []Role {
	out := make([]Role, len(orderedRoles))
	copy(out, orderedRoles)
	return out
}

// Valid reports whether r is in the closed role set
func (r Role) Valid() bool {
	return IsValidRole(string(r))
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}
