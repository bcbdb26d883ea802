// Package task provides the leaf entity of the tenancy tree. Tasks carry only
// the fields the lifecycle and isolation rules need; richer work-item fields
// live outside this engine.
package task

import (
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Status is the minimal task state.
type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

// IsValid checks if the status is one of the closed set.
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusDone
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Task is a work item inside a project. organization_id is denormalized so
// tenant filters reach tasks in a single predicate.
type Task struct {
	id             shared.ID
	projectID      shared.ID
	organizationID shared.ID
	title          string
	status         Status
	createdBy      shared.ID
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewTask creates a task in the open state.
func NewTask(projectID, organizationID shared.ID, title string, createdBy shared.ID) (*Task, error) {
	if projectID.IsZero() {
		return nil, fmt.Errorf("%w: projectID is required", shared.ErrValidation)
	}
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organizationID is required", shared.ErrValidation)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	if createdBy.IsZero() {
		return nil, fmt.Errorf("%w: createdBy is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Task{
		id:             shared.NewID(),
		projectID:      projectID,
		organizationID: organizationID,
		title:          title,
		status:         StatusOpen,
		createdBy:      createdBy,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstitute recreates a Task from persistence.
func Reconstitute(
	id, projectID, organizationID shared.ID,
	title string,
	status Status,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *Task {
	return &Task{
		id:             id,
		projectID:      projectID,
		organizationID: organizationID,
		title:          title,
		status:         status,
		createdBy:      createdBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		deletedAt:      deletedAt,
	}
}

// ID returns the task ID.
func (t *Task) ID() shared.ID {
	return t.id
}

// ProjectID returns the owning project.
func (t *Task) ProjectID() shared.ID {
	return t.projectID
}

// OrganizationID returns the owning organization.
func (t *Task) OrganizationID() shared.ID {
	return t.organizationID
}

// Title returns the task title.
func (t *Task) Title() string {
	return t.title
}

// Status returns the task status.
func (t *Task) Status() Status {
	return t.status
}

// CreatedBy returns the creating user.
func (t *Task) CreatedBy() shared.ID {
	return t.createdBy
}

// CreatedAt returns the creation timestamp.
func (t *Task) CreatedAt() time.Time {
	return t.createdAt
}

// UpdatedAt returns the last update timestamp.
func (t *Task) UpdatedAt() time.Time {
	return t.updatedAt
}

// DeletedAt returns the soft-delete timestamp, nil while active.
func (t *Task) DeletedAt() *time.Time {
	return t.deletedAt
}

// IsDeleted reports whether the task is soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.deletedAt != nil
}

// UpdateTitle updates the task title.
func (t *Task) UpdateTitle(title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", shared.ErrValidation)
	}
	t.title = title
	t.updatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus moves the task between open and done.
func (t *Task) UpdateStatus(status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid task status %q", shared.ErrValidation, status)
	}
	t.status = status
	t.updatedAt = time.Now().UTC()
	return nil
}

// SoftDelete marks the task deleted at the given instant.
func (t *Task) SoftDelete(at time.Time) error {
	if t.deletedAt != nil {
		return fmt.Errorf("%w: task %s", shared.ErrAlreadyDeleted, t.id)
	}
	at = at.UTC()
	t.deletedAt = &at
	t.updatedAt = at
	return nil
}

// Recover clears the soft-delete mark.
func (t *Task) Recover() error {
	if t.deletedAt == nil {
		return fmt.Errorf("%w: task %s", shared.ErrNotDeleted, t.id)
	}
	t.deletedAt = nil
	t.updatedAt = time.Now().UTC()
	return nil
}
