package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/pkg/logger"
)

// MaintenanceScheduler enqueues maintenance jobs on their cron schedules.
// It only enqueues; the asynq worker does the actual work. It runs inside
// the worker process, so deploy exactly one worker with scheduling enabled.
type MaintenanceScheduler struct {
	cron     *cron.Cron
	enqueuer MaintenanceJobEnqueuer
	cfg      config.MaintenanceConfig
	logger   *logger.Logger
}

// NewMaintenanceScheduler creates a scheduler over the given enqueuer.
func NewMaintenanceScheduler(enqueuer MaintenanceJobEnqueuer, cfg config.MaintenanceConfig, log *logger.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:     cron.New(),
		enqueuer: enqueuer,
		cfg:      cfg,
		logger:   log.With("component", "maintenance_scheduler"),
	}
}

// Start registers the cron entries and begins scheduling. Returns an error
// if a cron spec cannot be parsed.
func (s *MaintenanceScheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("maintenance scheduling disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.InvitationPruneSchedule, s.enqueueInvitationCleanup); err != nil {
		return fmt.Errorf("invalid invitation prune schedule %q: %w", s.cfg.InvitationPruneSchedule, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.AuditArchiveSchedule, s.enqueueAuditArchive); err != nil {
		return fmt.Errorf("invalid audit archive schedule %q: %w", s.cfg.AuditArchiveSchedule, err)
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		"invitation_prune", s.cfg.InvitationPruneSchedule,
		"audit_archive", s.cfg.AuditArchiveSchedule,
	)
	return nil
}

// Stop stops scheduling and waits for in-flight enqueues to finish.
func (s *MaintenanceScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *MaintenanceScheduler) enqueueInvitationCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.enqueuer.EnqueueInvitationCleanup(ctx); err != nil {
		s.logger.Error("failed to enqueue invitation cleanup", "error", err)
	}
}

func (s *MaintenanceScheduler) enqueueAuditArchive() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.enqueuer.EnqueueAuditArchive(ctx); err != nil {
		s.logger.Error("failed to enqueue audit archive", "error", err)
	}
}
