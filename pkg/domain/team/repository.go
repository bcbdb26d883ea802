package team

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
)

// Repository defines team persistence. Every query carries the owning
// organization id; a team id from another tenant resolves to
// shared.ErrNotFound, indistinguishable from a missing row. Mutating methods
// commit their audit entry in the same transaction.
type Repository interface {
	// Create persists a team. A name already used by a live team in the
	// organization surfaces as shared.ErrDuplicateName.
	Create(ctx context.Context, t *Team, entry *audit.Entry) error

	// GetByID loads a team within the organization.
	GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*Team, error)

	// List returns the organization's teams, newest first.
	List(ctx context.Context, organizationID shared.ID, includeDeleted bool) ([]*Team, error)

	// Update persists name/description changes.
	Update(ctx context.Context, t *Team, entry *audit.Entry) error

	// SoftDeleteCascade stamps the team and every non-deleted project under
	// it and every non-deleted task under those projects with the same
	// deletedAt instant, all in one transaction. Returns
	// shared.ErrAlreadyDeleted when the team is already stamped.
	SoftDeleteCascade(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (*CascadeResult, error)

	// RecoverCascade clears the team's stamp and the stamps of exactly the
	// children carrying the team's deleted_at value; children deleted before
	// the team keep their own stamps. Returns shared.ErrNotDeleted when the
	// team is active.
	RecoverCascade(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) (*CascadeResult, error)

	// AddMember grants a membership; duplicate (team, user) surfaces as
	// shared.ErrAlreadyExists.
	AddMember(ctx context.Context, member *Member, entry *audit.Entry) error

	// GetMember loads one membership, shared.ErrNotFound when absent.
	GetMember(ctx context.Context, teamID, userID shared.ID) (*Member, error)

	// UpdateMemberRole persists a role change.
	UpdateMemberRole(ctx context.Context, member *Member, entry *audit.Entry) error

	// RemoveMember deletes a membership.
	RemoveMember(ctx context.Context, teamID, userID shared.ID, entry *audit.Entry) error

	// ListMembers returns memberships joined with user details.
	ListMembers(ctx context.Context, teamID shared.ID) ([]*MemberWithUser, error)

	// CountByOrganization counts live teams in the organization.
	CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error)
}

// CascadeResult reports how many children a cascade touched.
type CascadeResult struct {
	Projects int64 `json:"projects"`
	Tasks    int64 `json:"tasks"`
}
