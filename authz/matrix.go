package authz

import (
	"sort"
	"strings"
)

// Action names an operation on a resource. The set is open-ended.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Built-in resource identifiers
const (
	ResourceSystemSettings = "system-settings"
	ResourceDocument       = "document"
)

// Requirement is the privilege needed for a (resource, action) pair.
// It is either ExactRoles or MinimumRole; no other implementations exist.
type Requirement interface {
	// Allows reports whether a principal holding role satisfies the requirement
	Allows(role Role) bool
	String() string
	requirement()
}

// ExactRoles is satisfied only by membership in an explicit role set,
// regardless of rank.
type ExactRoles struct {
	roles []Role
}

// NewExactRoles builds an ExactRoles requirement from the given roles
func NewExactRoles(roles ...Role) ExactRoles {
	set := make([]Role, 0, len(roles))
	seen := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		set = append(set, r)
	}
	return ExactRoles{roles: set}
}

// Roles returns a copy of the allowed roles
func (e ExactRoles) Roles() []Role {
	out := make([]Role, len(e.roles))
	copy(out, e.roles)
	return out
}

// Allows implements Requirement
func (e ExactRoles) Allows(role Role) bool {
	if !role.Valid() {
		return false
	}
	for _, r := range e.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (e ExactRoles) String() string {
	names := make([]string, len(e.roles))
	for i, r := range e.roles {
		names[i] = string(r)
	}
	return "roles(" + strings.Join(names, ",") + ")"
}

func (ExactRoles) requirement() {}

// MinimumRole is satisfied by any role ranked at or above Role.
type MinimumRole struct {
	Role Role
}

// Allows implements Requirement
func (m MinimumRole) Allows(role Role) bool {
	have, err := RankOf(role)
	if err != nil {
		return false
	}
	need, err := RankOf(m.Role)
	if err != nil {
		return false
	}
	return have >= need
}

func (m MinimumRole) String() string {
	return "minimum(" + string(m.Role) + ")"
}

func (MinimumRole) requirement() {}

// FailClosed is returned for any (resource, action) the matrix does not know.
var FailClosed Requirement = NewExactRoles(RoleAdmin)

// Policy maps actions to requirements for a single resource
type Policy map[Action]Requirement

// Matrix is an immutable table of resource policies.
type Matrix struct {
	resources map[string]Policy
}

// NewMatrix builds a matrix from the given policies. The input is copied;
// later changes to it do not affect the matrix.
func NewMatrix(policies map[string]Policy) *Matrix {
	resources := make(map[string]Policy, len(policies))
	for resource, policy := range policies {
		copied := make(Policy, len(policy))
		for action, req := range policy {
			if req == nil {
				continue
			}
			copied[action] = req
		}
		resources[resource] = copied
	}
	return &Matrix{resources: resources}
}

// builtinPolicies is the observed policy set.
// System settings are pinned to ADMIN by membership so that a future role
// ranked above ADMIN gains nothing without an explicit entry.
func builtinPolicies() map[string]Policy {
	adminOnly := NewExactRoles(RoleAdmin)
	return map[string]Policy{
		ResourceSystemSettings: {
			ActionRead:   adminOnly,
			ActionWrite:  adminOnly,
			ActionDelete: adminOnly,
		},
		ResourceDocument: {
			ActionRead:   MinimumRole{Role: RoleReadOnly},
			ActionWrite:  MinimumRole{Role: RoleStandardUser},
			ActionDelete: MinimumRole{Role: RolePowerUser},
		},
	}
}

// DefaultMatrix returns the built-in matrix
func DefaultMatrix() *Matrix {
	return NewMatrix(builtinPolicies())
}

// Requirement returns the requirement for a (resource, action) pair.
// Unknown resources and unknown actions both resolve to FailClosed.
func (m *Matrix) Requirement(resource string, action Action) Requirement {
	if m == nil {
		return FailClosed
	}
	policy, ok := m.resources[resource]
	if !ok {
		return FailClosed
	}
	req, ok := policy[action]
	if !ok || req == nil {
		return FailClosed
	}
	return req
}

// Resources returns the known resource identifiers, sorted
func (m *Matrix) Resources() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.resources))
	for name := range m.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Actions returns the actions defined for a resource, sorted
func (m *Matrix) Actions(resource string) []Action {
	if m == nil {
		return nil
	}
	policy := m.resources[resource]
	actions := make([]Action, 0, len(policy))
	for action := range policy {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
