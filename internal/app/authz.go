// Package app implements the application services, one per aggregate, plus
// the maintenance scheduler and the ports infrastructure adapters plug into.
// Services own authorization, input validation, and audit entry
// construction; repositories own the transactions.
package app

import (
	"errors"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
)

// checked counts the outcome of an authorization check, keyed by scope, and
// hands the error back unchanged. Denials record the minimum role that would
// have passed; scope-resolution failures record why the scope was unusable.
func checked(scope string, err error) error {
	switch {
	case err == nil:
		metrics.RecordAuthzAllowed(scope)
	case shared.IsPermissionDenied(err):
		var denied *shared.PermissionDeniedError
		requiredRole := ""
		if errors.As(err, &denied) {
			requiredRole = denied.RequiredRole
		}
		metrics.RecordAuthzDenied(scope, requiredRole)
	default:
		metrics.RecordTenantContextFailure(scopeFailureReason(err))
	}
	return err
}

func scopeFailureReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrMissingTenantContext):
		return "missing_org"
	case errors.Is(err, shared.ErrInvalidTenantContext):
		return "not_a_member"
	case errors.Is(err, shared.ErrMissingTeamContext):
		return "missing_team"
	case errors.Is(err, shared.ErrMissingProjectContext):
		return "missing_project"
	default:
		return "other"
	}
}

// publish fans a committed change out to the activity feed. entry is the
// audit entry the repository persisted with the mutation; teamID and
// projectID route the event to the narrower rooms when the change belongs
// to one.
func publish(b ActivityBroadcaster, entry *audit.Entry, teamID, projectID *shared.ID) {
	if b == nil || entry == nil {
		return
	}
	b.BroadcastActivity(ActivityEvent{
		OrganizationID: entry.OrganizationID(),
		ActorID:        entry.ActorID(),
		Action:         entry.Action().String(),
		ResourceType:   entry.ResourceType().String(),
		ResourceID:     entry.ResourceID(),
		TeamID:         teamID,
		ProjectID:      projectID,
		OccurredAt:     entry.CreatedAt(),
	})
}
