package domain

// Caller is the authenticated principal for one request, derived once from the
// access-token claims by the auth middleware and passed explicitly. There is
// no ambient security context.
type Caller struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
	Permissions    []string
}

// Can reports whether the caller holds the named permission.
func (c *Caller) Can(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
