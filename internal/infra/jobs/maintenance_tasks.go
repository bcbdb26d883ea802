package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge/api/pkg/logger"
)

// Task types for scheduled maintenance jobs
const (
	TypeMaintenanceInvitationCleanup = "maintenance:invitation_cleanup"
	TypeMaintenanceAuditArchive      = "maintenance:audit_archive"
)

// NewInvitationCleanupTask creates a task that prunes expired invitations.
// The payload is empty: the handler reads its grace window from config.
func NewInvitationCleanupTask() *asynq.Task {
	return asynq.NewTask(
		TypeMaintenanceInvitationCleanup,
		nil,
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("maintenance"),
	)
}

// NewAuditArchiveTask creates a task that exports and prunes audit rows
// older than the retention window.
func NewAuditArchiveTask() *asynq.Task {
	return asynq.NewTask(
		TypeMaintenanceAuditArchive,
		nil,
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("maintenance"),
	)
}

// MaintenanceProcessor runs the scheduled maintenance flows.
type MaintenanceProcessor interface {
	// PruneExpiredInvitations deletes pending invitations that expired
	// before the grace window. Returns the number of rows deleted.
	PruneExpiredInvitations(ctx context.Context) (int64, error)

	// ArchiveAuditEntries exports audit rows older than the retention
	// window to archive storage and deletes them. Returns the number of
	// rows archived.
	ArchiveAuditEntries(ctx context.Context) (int64, error)
}

// MaintenanceTaskHandler handles scheduled maintenance tasks.
type MaintenanceTaskHandler struct {
	processor MaintenanceProcessor
	logger    *logger.Logger
}

// NewMaintenanceTaskHandler creates a new maintenance task handler.
func NewMaintenanceTaskHandler(processor MaintenanceProcessor, log *logger.Logger) *MaintenanceTaskHandler {
	return &MaintenanceTaskHandler{
		processor: processor,
		logger:    log.With("handler", "maintenance_tasks"),
	}
}

// RegisterHandlers registers the maintenance handlers on the mux.
func (h *MaintenanceTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeMaintenanceInvitationCleanup, h.HandleInvitationCleanup)
	mux.HandleFunc(TypeMaintenanceAuditArchive, h.HandleAuditArchive)
}

// HandleInvitationCleanup processes invitation cleanup tasks.
func (h *MaintenanceTaskHandler) HandleInvitationCleanup(ctx context.Context, _ *asynq.Task) error {
	h.logger.Info("processing invitation cleanup")

	deleted, err := h.processor.PruneExpiredInvitations(ctx)
	if err != nil {
		h.logger.Error("invitation cleanup failed", "error", err)
		return fmt.Errorf("invitation cleanup: %w", err)
	}

	h.logger.Info("invitation cleanup finished", "deleted", deleted)
	return nil
}

// HandleAuditArchive processes audit archive tasks.
func (h *MaintenanceTaskHandler) HandleAuditArchive(ctx context.Context, _ *asynq.Task) error {
	h.logger.Info("processing audit archive")

	archived, err := h.processor.ArchiveAuditEntries(ctx)
	if err != nil {
		h.logger.Error("audit archive failed", "error", err)
		return fmt.Errorf("audit archive: %w", err)
	}

	h.logger.Info("audit archive finished", "archived", archived)
	return nil
}
