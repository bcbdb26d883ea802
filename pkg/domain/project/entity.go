// Package project provides the project aggregate nested inside a team.
package project

import (
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Project holds tasks within a team. organization_id is denormalized from the
// owning team so tenant filters never need a join.
type Project struct {
	id             shared.ID
	teamID         shared.ID
	organizationID shared.ID
	name           string
	description    string
	createdBy      shared.ID
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewProject creates a project. The creator is not granted a project
// membership; access flows from their team or organization role.
func NewProject(teamID, organizationID shared.ID, name, description string, createdBy shared.ID) (*Project, error) {
	if teamID.IsZero() {
		return nil, fmt.Errorf("%w: teamID is required", shared.ErrValidation)
	}
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
	return &Project{
		id:             shared.NewID(),
		teamID:         teamID,
		organizationID: organizationID,
		name:           name,
		description:    description,
		createdBy:      createdBy,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstitute recreates a Project from persistence.
func Reconstitute(
	id, teamID, organizationID shared.ID,
	name, description string,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *Project {
	return &Project{
		id:             id,
		teamID:         teamID,
		organizationID: organizationID,
		name:           name,
		description:    description,
		createdBy:      createdBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		deletedAt:      deletedAt,
	}
}

// ID returns the project ID.
func (p *Project) ID() shared.ID {
	return p.id
}

// TeamID returns the owning team.
func (p *Project) TeamID() shared.ID {
	return p.teamID
}

// OrganizationID returns the owning organization.
func (p *Project) OrganizationID() shared.ID {
	return p.organizationID
}

// Name returns the project name.
func (p *Project) Name() string {
	return p.name
}

// Description returns the project description.
func (p *Project) Description() string {
	return p.description
}

// CreatedBy returns the creating user.
func (p *Project) CreatedBy() shared.ID {
	return p.createdBy
}

// CreatedAt returns the creation timestamp.
func (p *Project) CreatedAt() time.Time {
	return p.createdAt
}

// UpdatedAt returns the last update timestamp.
func (p *Project) UpdatedAt() time.Time {
	return p.updatedAt
}

// DeletedAt returns the soft-delete timestamp, nil while active.
func (p *Project) DeletedAt() *time.Time {
	return p.deletedAt
}

// IsDeleted reports whether the project is soft-deleted.
func (p *Project) IsDeleted() bool {
	return p.deletedAt != nil
}

// UpdateName updates the project name.
func (p *Project) UpdateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	p.name = name
	p.updatedAt = time.Now().UTC()
	return nil
}

// UpdateDescription updates the project description.
func (p *Project) UpdateDescription(description string) {
	p.description = description
	p.updatedAt = time.Now().UTC()
}

// SoftDelete marks the project deleted at the given instant.
func (p *Project) SoftDelete(at time.Time) error {
	if p.deletedAt != nil {
		return fmt.Errorf("%w: project %s", shared.ErrAlreadyDeleted, p.id)
	}
	at = at.UTC()
	p.deletedAt = &at
	p.updatedAt = at
	return nil
}

// Recover clears the soft-delete mark.
func (p *Project) Recover() error {
	if p.deletedAt == nil {
		return fmt.Errorf("%w: project %s", shared.ErrNotDeleted, p.id)
	}
	p.deletedAt = nil
	p.updatedAt = time.Now().UTC()
	return nil
}
