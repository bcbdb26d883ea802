package organization

import (
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Member is a user's membership in an organization. At most one row exists
// per (organization, user) pair, enforced by a uniqueness constraint.
type Member struct {
	id             shared.ID
	organizationID shared.ID
	userID         shared.ID
	role           Role
	addedBy        *shared.ID // nil for the founding owner
	createdAt      time.Time
}

// NewMember creates an organization membership.
func NewMember(organizationID, userID shared.ID, role Role, addedBy *shared.ID) (*Member, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organizationID is required", shared.ErrValidation)
	}
	if userID.IsZero() {
		return nil, fmt.Errorf("%w: userID is required", shared.ErrValidation)
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: invalid organization role %q", shared.ErrValidation, role)
	}

	return &Member{
		id:             shared.NewID(),
		organizationID: organizationID,
		userID:         userID,
		role:           role,
		addedBy:        addedBy,
		createdAt:      time.Now().UTC(),
	}, nil
}

// NewOwnerMember creates the founding Owner membership for a new organization.
func NewOwnerMember(organizationID, userID shared.ID) (*Member, error) {
	return NewMember(organizationID, userID, RoleOwner, nil)
}

// ReconstituteMember recreates a Member from persistence.
func ReconstituteMember(
	id shared.ID,
	organizationID, userID shared.ID,
	role Role,
	addedBy *shared.ID,
	createdAt time.Time,
) *Member {
	return &Member{
		id:             id,
		organizationID: organizationID,
		userID:         userID,
		role:           role,
		addedBy:        addedBy,
		createdAt:      createdAt,
	}
}

// ID returns the membership ID.
func (m *Member) ID() shared.ID {
	return m.id
}

// OrganizationID returns the organization.
func (m *Member) OrganizationID() shared.ID {
	return m.organizationID
}

// UserID returns the member's user ID.
func (m *Member) UserID() shared.ID {
	return m.userID
}

// Role returns the member's role.
func (m *Member) Role() Role {
	return m.role
}

// AddedBy returns who granted the membership, nil for the founding owner.
func (m *Member) AddedBy() *shared.ID {
	return m.addedBy
}

// CreatedAt returns when the membership was granted.
func (m *Member) CreatedAt() time.Time {
	return m.createdAt
}

// IsOwner reports whether the member holds the Owner role.
func (m *Member) IsOwner() bool {
	return m.role == RoleOwner
}

// UpdateRole changes the member's role.
func (m *Member) UpdateRole(role Role) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: invalid organization role %q", shared.ErrValidation, role)
	}
	m.role = role
	return nil
}

// MemberWithUser is a membership joined with user details for listings.
type MemberWithUser struct {
	ID        shared.ID  `json:"id"`
	UserID    shared.ID  `json:"user_id"`
	Role      Role       `json:"role"`
	AddedBy   *shared.ID `json:"added_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
}
