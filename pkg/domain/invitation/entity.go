// Package invitation models onboarding of users into an organization by
// email. An invitation carries the roles to grant on acceptance; the invitee
// does not need to exist until they accept.
package invitation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

// DefaultExpiry is how long an invitation stays acceptable.
const DefaultExpiry = 7 * 24 * time.Hour

// Invitation represents a pending or accepted invitation. Accepted rows are
// kept so a second accept of the same token can be told apart from a token
// that never existed.
type Invitation struct {
	id             shared.ID
	organizationID shared.ID
	email          string
	orgRole        organization.Role

	// Optional grants applied together with the organization membership.
	teamID      *shared.ID
	teamRole    team.Role
	projectID   *shared.ID
	projectRole project.Role

	token      string
	invitedBy  shared.ID
	expiresAt  time.Time
	acceptedAt *time.Time
	acceptedBy *shared.ID
	createdAt  time.Time
}

// NewInvitation creates an invitation granting organization membership.
// Owners are never granted by invitation; ownership comes from creating the
// organization or a later role change.
func NewInvitation(organizationID shared.ID, email string, orgRole organization.Role, invitedBy shared.ID) (*Invitation, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organizationID is required", shared.ErrValidation)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	if !orgRole.IsValid() {
		return nil, fmt.Errorf("%w: invalid organization role %q", shared.ErrValidation, orgRole)
	}
	if orgRole == organization.RoleOwner {
		return nil, fmt.Errorf("%w: cannot invite as owner", shared.ErrValidation)
	}
	if invitedBy.IsZero() {
		return nil, fmt.Errorf("%w: invitedBy is required", shared.ErrValidation)
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	return &Invitation{
		id:             shared.NewID(),
		organizationID: organizationID,
		email:          email,
		orgRole:        orgRole,
		token:          token,
		invitedBy:      invitedBy,
		expiresAt:      now.Add(DefaultExpiry),
		createdAt:      now,
	}, nil
}

// GrantTeam adds a team membership to the grants applied on acceptance.
func (i *Invitation) GrantTeam(teamID shared.ID, role team.Role) error {
	if teamID.IsZero() {
		return fmt.Errorf("%w: teamID is required", shared.ErrValidation)
	}
	if !role.IsValid() {
		return fmt.Errorf("%w: invalid team role %q", shared.ErrValidation, role)
	}
	i.teamID = &teamID
	i.teamRole = role
	return nil
}

// GrantProject adds a project membership to the grants applied on acceptance.
func (i *Invitation) GrantProject(projectID shared.ID, role project.Role) error {
	if projectID.IsZero() {
		return fmt.Errorf("%w: projectID is required", shared.ErrValidation)
	}
	if !role.IsValid() {
		return fmt.Errorf("%w: invalid project role %q", shared.ErrValidation, role)
	}
	i.projectID = &projectID
	i.projectRole = role
	return nil
}

// Reconstitute recreates an Invitation from persistence.
func Reconstitute(
	id, organizationID shared.ID,
	email string,
	orgRole organization.Role,
	teamID *shared.ID,
	teamRole team.Role,
	projectID *shared.ID,
	projectRole project.Role,
	token string,
	invitedBy shared.ID,
	expiresAt time.Time,
	acceptedAt *time.Time,
	acceptedBy *shared.ID,
	createdAt time.Time,
) *Invitation {
	return &Invitation{
		id:             id,
		organizationID: organizationID,
		email:          email,
		orgRole:        orgRole,
		teamID:         teamID,
		teamRole:       teamRole,
		projectID:      projectID,
		projectRole:    projectRole,
		token:          token,
		invitedBy:      invitedBy,
		expiresAt:      expiresAt,
		acceptedAt:     acceptedAt,
		acceptedBy:     acceptedBy,
		createdAt:      createdAt,
	}
}

// ID returns the invitation ID.
func (i *Invitation) ID() shared.ID {
	return i.id
}

// OrganizationID returns the inviting organization.
func (i *Invitation) OrganizationID() shared.ID {
	return i.organizationID
}

// Email returns the invitee's email, lowercased.
func (i *Invitation) Email() string {
	return i.email
}

// OrgRole returns the organization role granted on acceptance.
func (i *Invitation) OrgRole() organization.Role {
	return i.orgRole
}

// TeamID returns the team granted on acceptance, nil when none.
func (i *Invitation) TeamID() *shared.ID {
	return i.teamID
}

// TeamRole returns the team role granted on acceptance.
func (i *Invitation) TeamRole() team.Role {
	return i.teamRole
}

// ProjectID returns the project granted on acceptance, nil when none.
func (i *Invitation) ProjectID() *shared.ID {
	return i.projectID
}

// ProjectRole returns the project role granted on acceptance.
func (i *Invitation) ProjectRole() project.Role {
	return i.projectRole
}

// Token returns the single-use acceptance token.
func (i *Invitation) Token() string {
	return i.token
}

// InvitedBy returns the user who sent the invitation.
func (i *Invitation) InvitedBy() shared.ID {
	return i.invitedBy
}

// ExpiresAt returns when the invitation expires.
func (i *Invitation) ExpiresAt() time.Time {
	return i.expiresAt
}

// AcceptedAt returns when the invitation was accepted, nil while pending.
func (i *Invitation) AcceptedAt() *time.Time {
	return i.acceptedAt
}

// AcceptedBy returns the user who accepted, nil while pending.
func (i *Invitation) AcceptedBy() *shared.ID {
	return i.acceptedBy
}

// CreatedAt returns when the invitation was created.
func (i *Invitation) CreatedAt() time.Time {
	return i.createdAt
}

// IsExpired checks if the invitation has expired.
func (i *Invitation) IsExpired() bool {
	return time.Now().UTC().After(i.expiresAt)
}

// IsAccepted checks if the invitation has been accepted.
func (i *Invitation) IsAccepted() bool {
	return i.acceptedAt != nil
}

// IsPending checks if the invitation is neither expired nor accepted.
func (i *Invitation) IsPending() bool {
	return !i.IsExpired() && !i.IsAccepted()
}

// Accept marks the invitation as accepted by the given user. Accepted state
// is checked before expiry so a token accepted in time and presented again
// reports the accept, not the expiry.
func (i *Invitation) Accept(by shared.ID) error {
	if i.IsAccepted() {
		return fmt.Errorf("%w: invitation %s", shared.ErrInvitationAccepted, i.id)
	}
	if i.IsExpired() {
		return fmt.Errorf("%w: invitation %s", shared.ErrInvitationExpired, i.id)
	}
	if by.IsZero() {
		return fmt.Errorf("%w: accepting user is required", shared.ErrValidation)
	}
	now := time.Now().UTC()
	i.acceptedAt = &now
	i.acceptedBy = &by
	return nil
}

// generateToken generates a secure random token with 256 bits of entropy.
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
