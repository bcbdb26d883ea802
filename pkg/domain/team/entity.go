// Package team provides the team aggregate nested inside an organization.
package team

import (
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Team groups projects within an organization. Its name is unique within the
// owning organization; its lifecycle is strictly nested inside the
// organization's lifecycle.
type Team struct {
	id             shared.ID
	organizationID shared.ID
	name           string
	description    string
	createdBy      shared.ID
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewTeam creates a team. The creator is not granted a team membership;
// access flows from their organization role until someone adds them.
func NewTeam(organizationID shared.ID, name, description string, createdBy shared.ID) (*Team, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organizationID is required", shared.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if createdBy.IsZero() {
		return nil, fmt.Errorf("%w: createdBy is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Team{
		id:             shared.NewID(),
		organizationID: organizationID,
		name:           name,
		description:    description,
		createdBy:      createdBy,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstitute recreates a Team from persistence.
func Reconstitute(
	id, organizationID shared.ID,
	name, description string,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *Team {
	return &Team{
		id:             id,
		organizationID: organizationID,
		name:           name,
		description:    description,
		createdBy:      createdBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		deletedAt:      deletedAt,
	}
}

// ID returns the team ID.
func (t *Team) ID() shared.ID {
	return t.id
}

// OrganizationID returns the owning organization.
func (t *Team) OrganizationID() shared.ID {
	return t.organizationID
}

// Name returns the team name.
func (t *Team) Name() string {
	return t.name
}

// Description returns the team description.
func (t *Team) Description() string {
	return t.description
}

// CreatedBy returns the creating user.
func (t *Team) CreatedBy() shared.ID {
	return t.createdBy
}

// CreatedAt returns the creation timestamp.
func (t *Team) CreatedAt() time.Time {
	return t.createdAt
}

// UpdatedAt returns the last update timestamp.
func (t *Team) UpdatedAt() time.Time {
	return t.updatedAt
}

// DeletedAt returns the soft-delete timestamp, nil while active.
func (t *Team) DeletedAt() *time.Time {
	return t.deletedAt
}

// IsDeleted reports whether the team is soft-deleted.
func (t *Team) IsDeleted() bool {
	return t.deletedAt != nil
}

// UpdateName updates the team name.
func (t *Team) UpdateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	t.name = name
	t.updatedAt = time.Now().UTC()
	return nil
}

// UpdateDescription updates the team description.
func (t *Team) UpdateDescription(description string) {
	t.description = description
	t.updatedAt = time.Now().UTC()
}

// SoftDelete marks the team deleted at the given instant.
func (t *Team) SoftDelete(at time.Time) error {
	if t.deletedAt != nil {
		return fmt.Errorf("%w: team %s", shared.ErrAlreadyDeleted, t.id)
	}
	at = at.UTC()
	t.deletedAt = &at
	t.updatedAt = at
	return nil
}

// Recover clears the soft-delete mark.
func (t *Team) Recover() error {
	if t.deletedAt == nil {
		return fmt.Errorf("%w: team %s", shared.ErrNotDeleted, t.id)
	}
	t.deletedAt = nil
	t.updatedAt = time.Now().UTC()
	return nil
}
