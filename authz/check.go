package authz

import (
	"strings"
)

// Check is the requirement attached to a single guarded handler or gated view.
// Exactly one variant is chosen where the handler is wrapped.
type Check interface {
	// Satisfied reports whether p passes the check
	Satisfied(a *Authorizer, p *Principal) bool
	// Describe returns a short label for logs and audit records
	Describe() string
	check()
}

// RequireRole builds an exact-role check
func RequireRole(role Role) Check {
	return exactRoleCheck{role: role}
}

// RequireMinimumRole builds a hierarchical check
func RequireMinimumRole(role Role) Check {
	return minimumRoleCheck{role: role}
}

// RequireAnyRole builds an allow-list check
func RequireAnyRole(roles ...Role) Check {
	copied := make([]Role, len(roles))
	copy(copied, roles)
	return anyRoleCheck{roles: copied}
}

// RequirePermission builds a check resolved through the permission matrix
func RequirePermission(resource string, action Action) Check {
	return permissionCheck{resource: resource, action: action}
}

type exactRoleCheck struct {
	role Role
}

func (c exactRoleCheck) Satisfied(a *Authorizer, p *Principal) bool {
	return a.HasRole(p, c.role)
}

func (c exactRoleCheck) Describe() string { return "role=" + string(c.role) }

func (exactRoleCheck) check() {}

type minimumRoleCheck struct {
	role Role
}

func (c minimumRoleCheck) Satisfied(a *Authorizer, p *Principal) bool {
	return a.HasMinimumRole(p, c.role)
}

func (c minimumRoleCheck) Describe() string { return "minimumRole=" + string(c.role) }

func (minimumRoleCheck) check() {}

type anyRoleCheck struct {
	roles []Role
}

func (c anyRoleCheck) Satisfied(a *Authorizer, p *Principal) bool {
	return a.HasAnyRole(p, c.roles)
}

func (c anyRoleCheck) Describe() string {
	names := make([]string, len(c.roles))
	for i, r := range c.roles {
		names[i] = string(r)
	}
	return "roles=" + strings.Join(names, ",")
}

func (anyRoleCheck) check() {}

type permissionCheck struct {
	resource string
	action   Action
}

func (c permissionCheck) Satisfied(a *Authorizer, p *Principal) bool {
	return a.IsAuthorized(p, c.resource, c.action)
}

func (c permissionCheck) Describe() string {
	return "permission=" + c.resource + ":" + string(c.action)
}

func (permissionCheck) check() {}
