// Package audit provides the append-only administrative action trail.
package audit

import (
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Entry is one audit log row. Entries are written in the same transaction as
// the mutation they describe and are never updated or deleted by request
// handling; the only removal path is retention archiving.
type Entry struct {
	id             shared.ID
	organizationID shared.ID
	actorID        *shared.ID // nil for system-initiated actions
	action         Action
	resourceType   ResourceType
	resourceID     string
	context        map[string]any
	createdAt      time.Time
}

// NewEntry creates an audit entry for an action on a resource within an
// organization.
func NewEntry(organizationID shared.ID, action Action, resourceType ResourceType, resourceID string) (*Entry, error) {
	if organizationID.IsZero() {
		return nil, fmt.Errorf("%w: organizationID is required", shared.ErrValidation)
	}
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid audit action %q", shared.ErrValidation, action)
	}
	if !resourceType.IsValid() {
		return nil, fmt.Errorf("%w: invalid resource type %q", shared.ErrValidation, resourceType)
	}
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resourceID is required", shared.ErrValidation)
	}

	return &Entry{
		id:             shared.NewID(),
		organizationID: organizationID,
		action:         action,
		resourceType:   resourceType,
		resourceID:     resourceID,
		context:        make(map[string]any),
		createdAt:      time.Now().UTC(),
	}, nil
}

// Reconstitute recreates an Entry from persistence.
func Reconstitute(
	id shared.ID,
	organizationID shared.ID,
	actorID *shared.ID,
	action Action,
	resourceType ResourceType,
	resourceID string,
	context map[string]any,
	createdAt time.Time,
) *Entry {
	if context == nil {
		context = make(map[string]any)
	}
	return &Entry{
		id:             id,
		organizationID: organizationID,
		actorID:        actorID,
		action:         action,
		resourceType:   resourceType,
		resourceID:     resourceID,
		context:        context,
		createdAt:      createdAt,
	}
}

// ID returns the entry ID.
func (e *Entry) ID() shared.ID {
	return e.id
}

// OrganizationID returns the owning organization.
func (e *Entry) OrganizationID() shared.ID {
	return e.organizationID
}

// ActorID returns the acting user, or nil for system actions.
func (e *Entry) ActorID() *shared.ID {
	return e.actorID
}

// Action returns the recorded action.
func (e *Entry) Action() Action {
	return e.action
}

// ResourceType returns the affected resource's type tag.
func (e *Entry) ResourceType() ResourceType {
	return e.resourceType
}

// ResourceID returns the affected resource's ID.
func (e *Entry) ResourceID() string {
	return e.resourceID
}

// Context returns a copy of the structured context payload.
func (e *Entry) Context() map[string]any {
	out := make(map[string]any, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

// CreatedAt returns when the entry was recorded.
func (e *Entry) CreatedAt() time.Time {
	return e.createdAt
}

// IsSystemAction reports whether the entry has no human actor.
func (e *Entry) IsSystemAction() bool {
	return e.actorID == nil
}

// WithActor sets the acting user.
func (e *Entry) WithActor(actorID shared.ID) *Entry {
	e.actorID = &actorID
	return e
}

// WithContext records one context key, typically a changed field or a
// before/after pair.
func (e *Entry) WithContext(key string, value any) *Entry {
	e.context[key] = value
	return e
}
