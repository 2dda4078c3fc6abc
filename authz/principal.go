package authz

// Principal is the authenticated identity attached to a request or render.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Valid reports whether the principal is present and carries a known role.
// A nil principal or an unrecognised role string is never coerced.
func (p *Principal) Valid() bool {
	return p != nil && p.Role.Valid()
}
