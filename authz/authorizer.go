package authz

// HasRole reports whether p holds exactly role. A higher-ranked principal
// does not satisfy a lower exact-role check.
func HasRole(p *Principal, role Role) bool {
	if !p.Valid() {
		return false
	}
	return p.Role == role
}

// HasAnyRole reports whether p's role is a member of roles (exact membership)
func HasAnyRole(p *Principal, roles []Role) bool {
	if !p.Valid() {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// HasMinimumRole reports whether p is ranked at or above role
func HasMinimumRole(p *Principal, role Role) bool {
	if !p.Valid() {
		return false
	}
	return MinimumRole{Role: role}.Allows(p.Role)
}

// Authorizer evaluates principals against a permission matrix.
// It holds no mutable state and is safe for concurrent use.
type Authorizer struct {
	matrix *Matrix
}

// NewAuthorizer creates an Authorizer backed by matrix.
// A nil matrix falls back to DefaultMatrix.
func NewAuthorizer(matrix *Matrix) *Authorizer {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	return &Authorizer{matrix: matrix}
}

// Matrix returns the permission matrix in use
func (a *Authorizer) Matrix() *Matrix {
	return a.matrix
}

// HasRole is the exact-role predicate
func (a *Authorizer) HasRole(p *Principal, role Role) bool {
	return HasRole(p, role)
}

// HasAnyRole is the allow-list predicate
func (a *Authorizer) HasAnyRole(p *Principal, roles []Role) bool {
	return HasAnyRole(p, roles)
}

// HasMinimumRole is the hierarchical predicate
func (a *Authorizer) HasMinimumRole(p *Principal, role Role) bool {
	return HasMinimumRole(p, role)
}

// IsAuthorized reports whether p may perform action on resource.
// Unknown pairs resolve through the matrix's fail-closed default.
func (a *Authorizer) IsAuthorized(p *Principal, resource string, action Action) bool {
	if !p.Valid() {
		return false
	}
	return a.matrix.Requirement(resource, action).Allows(p.Role)
}
