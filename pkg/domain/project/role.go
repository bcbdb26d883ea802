package project

// Role represents a user's role within a project.
type Role string

const (
	RoleManager     Role = "manager"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// IsValid checks if the role is one of the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleManager, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Rank returns the role's position in the total order.
func (r Role) Rank() int {
	switch r {
	case RoleManager:
		return 3
	case RoleContributor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Meets reports whether this role satisfies the required minimum.
func (r Role) Meets(required Role) bool {
	return r.Rank() >= required.Rank()
}

// ParseRole parses a string to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// Roles lists the closed set, highest rank first.
func Roles() []Role {
	return []Role{RoleManager, RoleContributor, RoleViewer}
}
