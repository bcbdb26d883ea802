package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authorization metrics
var (
	// AuthzChecksTotal tracks authorization decisions by scope level and outcome.
	AuthzChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_checks_total",
			Help: "Total number of authorization checks by scope and outcome",
		},
		[]string{"scope", "outcome"}, // scope: organization|team|project, outcome: allowed|denied
	)

	// AuthzDenialsTotal tracks denials by scope level and the role that would
	// have been required. Organization labels are deliberately absent to keep
	// cardinality bounded.
	AuthzDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_denials_total",
			Help: "Total number of authorization denials by scope and required role",
		},
		[]string{"scope", "required_role"},
	)

	// TenantContextFailures tracks requests rejected before any role check ran.
	TenantContextFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_context_failures_total",
			Help: "Total number of requests rejected for missing or invalid tenant context",
		},
		[]string{"reason"}, // reason: missing_org|not_a_member|missing_team|missing_project|cross_tenant
	)
)

// Membership and invitation metrics
var (
	// MembershipChangesTotal tracks membership grants, role changes and removals.
	MembershipChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_changes_total",
			Help: "Total number of membership mutations by level and action",
		},
		[]string{"level", "action"}, // level: organization|team|project
	)

	// InvitationsTotal tracks invitation lifecycle transitions.
	InvitationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_total",
			Help: "Total number of invitation lifecycle events",
		},
		[]string{"event"}, // event: issued|accepted|revoked|expired_pruned
	)

	// InvitationEmailsTotal tracks invitation email delivery outcomes.
	InvitationEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_emails_total",
			Help: "Total number of invitation emails by outcome",
		},
		[]string{"outcome"}, // outcome: sent|failed|skipped
	)
)

// Lifecycle metrics
var (
	// SoftDeleteCascadesTotal tracks cascade deletions by root resource type.
	SoftDeleteCascadesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soft_delete_cascades_total",
			Help: "Total number of soft-delete cascades by root resource",
		},
		[]string{"resource"},
	)

	// CascadeChildrenTotal tracks how many child rows cascades touched.
	CascadeChildrenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cascade_children_total",
			Help: "Total number of child rows stamped or recovered by cascades",
		},
		[]string{"resource", "direction"}, // direction: delete|recover
	)
)

// Audit trail metrics
var (
	// AuditEntriesTotal tracks written audit entries by action.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries written",
		},
		[]string{"action", "resource_type"},
	)

	// AuditArchiveRunsTotal tracks retention job outcomes.
	AuditArchiveRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_archive_runs_total",
			Help: "Total number of audit archive runs by outcome",
		},
		[]string{"outcome"}, // outcome: success|failed|empty
	)

	// AuditArchivedEntries tracks how many rows the retention job exported.
	AuditArchivedEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_archived_entries_total",
			Help: "Total number of audit entries exported to archive storage",
		},
	)

	// AuditArchiveDuration tracks how long one retention run takes.
	AuditArchiveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_archive_duration_seconds",
			Help:    "Audit archive run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

// Background job metrics
var (
	// JobsProcessedTotal tracks asynq task outcomes by type.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of background jobs processed by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: ok|error
	)

	// JobDuration tracks background job duration by type.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)
)

// Activity feed metrics
var (
	// WebsocketConnections tracks open activity feed connections.
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of open activity feed connections",
		},
	)

	// WebsocketEventsTotal tracks events fanned out to feed subscribers.
	WebsocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_total",
			Help: "Total number of activity events delivered or dropped",
		},
		[]string{"outcome"}, // outcome: delivered|dropped
	)
)

// RecordAuthzAllowed increments the check counter for an allowed decision.
func RecordAuthzAllowed(scope string) {
	AuthzChecksTotal.WithLabelValues(scope, "allowed").Inc()
}

// RecordAuthzDenied increments the check and denial counters.
func RecordAuthzDenied(scope, requiredRole string) {
	AuthzChecksTotal.WithLabelValues(scope, "denied").Inc()
	AuthzDenialsTotal.WithLabelValues(scope, requiredRole).Inc()
}

// RecordTenantContextFailure increments the tenant context failure counter.
func RecordTenantContextFailure(reason string) {
	TenantContextFailures.WithLabelValues(reason).Inc()
}

// RecordMembershipChange increments the membership mutation counter.
func RecordMembershipChange(level, action string) {
	MembershipChangesTotal.WithLabelValues(level, action).Inc()
}

// RecordInvitationEvent increments the invitation lifecycle counter.
func RecordInvitationEvent(event string) {
	InvitationsTotal.WithLabelValues(event).Inc()
}

// RecordAuditEntry increments the audit entry counter.
func RecordAuditEntry(action, resourceType string) {
	AuditEntriesTotal.WithLabelValues(action, resourceType).Inc()
}

// RecordCascade records a cascade and the number of children it touched.
func RecordCascade(resource, direction string, children int64) {
	if direction == "delete" {
		SoftDeleteCascadesTotal.WithLabelValues(resource).Inc()
	}
	CascadeChildrenTotal.WithLabelValues(resource, direction).Add(float64(children))
}

// RecordInvitationEmail increments the email delivery counter.
func RecordInvitationEmail(outcome string) {
	InvitationEmailsTotal.WithLabelValues(outcome).Inc()
}

// RecordArchiveRun records one retention run outcome.
func RecordArchiveRun(outcome string) {
	AuditArchiveRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordArchivedEntries adds to the exported row counter.
func RecordArchivedEntries(n int64) {
	AuditArchivedEntries.Add(float64(n))
}

// ObserveArchiveDuration records how long a retention run took.
func ObserveArchiveDuration(seconds float64) {
	AuditArchiveDuration.Observe(seconds)
}

// RecordJob records one background job outcome and its duration.
func RecordJob(taskType, outcome string, seconds float64) {
	JobsProcessedTotal.WithLabelValues(taskType, outcome).Inc()
	JobDuration.WithLabelValues(taskType).Observe(seconds)
}

// WebsocketConnectionOpened increments the open connection gauge.
func WebsocketConnectionOpened() {
	WebsocketConnections.Inc()
}

// WebsocketConnectionClosed decrements the open connection gauge.
func WebsocketConnectionClosed() {
	WebsocketConnections.Dec()
}

// RecordWebsocketEvent counts one fan-out delivery attempt.
func RecordWebsocketEvent(outcome string) {
	WebsocketEventsTotal.WithLabelValues(outcome).Inc()
}
