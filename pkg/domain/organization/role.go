package organization

// Role represents a user's role within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsValid checks if the role is one of the closed set.
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Rank returns the role's position in the total order. Higher outranks lower;
// unknown strings rank zero and are rejected before any comparison happens.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
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

// InheritsTeamAccess reports whether the role passes every team-level check
// without an explicit team membership.
func (r Role) InheritsTeamAccess() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanAssign checks whether a holder of this role may grant the target role to
// another member. Only owners mint new owners.
func (r Role) CanAssign(target Role) bool {
	if !target.IsValid() {
		return false
	}
	switch r {
	case RoleOwner:
		return true
	case RoleAdmin:
		return target != RoleOwner
	}
	return false
}

// ParseRole parses a string to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}

// Roles lists the closed set, highest rank first.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleMember}
}
