package app

import (
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// ActivityEvent describes one committed change, mirroring the audit entry
// written in the same transaction. TeamID and ProjectID route the event to
// the narrower rooms a client may follow.
type ActivityEvent struct {
	OrganizationID shared.ID
	ActorID        *shared.ID
	Action         string
	ResourceType   string
	ResourceID     string
	TeamID         *shared.ID
	ProjectID      *shared.ID
	OccurredAt     time.Time
}

// ActivityBroadcaster pushes committed activity to connected clients.
// Services call it after their transaction commits; delivery is best effort
// and never affects the outcome of the mutation.
type ActivityBroadcaster interface {
	BroadcastActivity(event ActivityEvent)
}

// NoOpActivityBroadcaster drops all events. Used in tests and in processes
// that do not serve websocket traffic, such as the worker and the admin CLI.
type NoOpActivityBroadcaster struct{}

// BroadcastActivity implements ActivityBroadcaster.
func (NoOpActivityBroadcaster) BroadcastActivity(ActivityEvent) {}

var _ ActivityBroadcaster = NoOpActivityBroadcaster{}
