package websocket

import (
	"github.com/taskforge/api/internal/app"
)

// ActivityFanout publishes committed activity onto hub rooms. Every event
// reaches the organization room; events that touch a team or project also
// reach those rooms.
type ActivityFanout struct {
	hub *Hub
}

// NewActivityFanout creates the fanout for a hub.
func NewActivityFanout(hub *Hub) *ActivityFanout {
	return &ActivityFanout{hub: hub}
}

var _ app.ActivityBroadcaster = (*ActivityFanout)(nil)

// BroadcastActivity implements app.ActivityBroadcaster.
func (f *ActivityFanout) BroadcastActivity(event app.ActivityEvent) {
	payload := ActivityPayload{
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		OccurredAt:   event.OccurredAt,
	}
	if event.ActorID != nil {
		payload.ActorID = event.ActorID.String()
	}

	orgID := event.OrganizationID.String()
	channels := []string{MakeChannel(ChannelTypeOrganization, orgID)}

	if event.TeamID != nil {
		payload.TeamID = event.TeamID.String()
		channels = append(channels, MakeChannel(ChannelTypeTeam, payload.TeamID))
	}
	if event.ProjectID != nil {
		payload.ProjectID = event.ProjectID.String()
		channels = append(channels, MakeChannel(ChannelTypeProject, payload.ProjectID))
	}

	for _, ch := range channels {
		f.hub.BroadcastEvent(ch, payload, orgID)
	}
}
