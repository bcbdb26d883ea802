package team

// Role represents a user's role within a team.
type Role string

const (
	RoleLead   Role = "lead"
	RoleMember Role = "member"
)

// IsValid checks if the role is one of the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleLead, RoleMember:
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
	case RoleLead:
		return 2
	case RoleMember:
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
	return []Role{RoleLead, RoleMember}
}
