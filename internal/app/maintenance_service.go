package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
)

// AuditArchiveUploader is the storage port for exported audit batches.
// The payload is uncompressed JSONL; the implementation compresses it and
// returns the final object key.
type AuditArchiveUploader interface {
	Upload(ctx context.Context, key string, payload []byte) (string, error)
}

// MaintenanceJobEnqueuer is the port the cron scheduler uses to hand
// maintenance work to the job queue.
type MaintenanceJobEnqueuer interface {
	EnqueueInvitationCleanup(ctx context.Context) error
	EnqueueAuditArchive(ctx context.Context) error
}

// MaintenanceService runs the scheduled maintenance flows: pruning expired
// invitations and archiving audit rows past their retention window. Both
// run on the job worker, not in request handling.
type MaintenanceService struct {
	invitations invitation.Repository
	auditRepo   audit.Repository
	uploader    AuditArchiveUploader
	cfg         config.MaintenanceConfig
	logger      *logger.Logger
	now         func() time.Time
}

// NewMaintenanceService creates the maintenance service. The uploader may be
// nil when archive storage is not configured; archiving then reports zero
// work instead of failing.
func NewMaintenanceService(
	invitations invitation.Repository,
	auditRepo audit.Repository,
	uploader AuditArchiveUploader,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceService {
	return &MaintenanceService{
		invitations: invitations,
		auditRepo:   auditRepo,
		uploader:    uploader,
		cfg:         cfg,
		logger:      log.With("service", "maintenance"),
		now:         time.Now,
	}
}

// PruneExpiredInvitations deletes invitations that expired before the grace
// window and were never accepted. Accepted invitations are never touched.
// One audit entry is written per organization that had rows pruned, inside
// the same transaction as that organization's delete.
func (s *MaintenanceService) PruneExpiredInvitations(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.InvitationGraceDays)

	orgIDs, err := s.invitations.ListExpiredOrganizations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list organizations with expired invitations: %w", err)
	}
	if len(orgIDs) == 0 {
		return 0, nil
	}

	var (
		total    int64
		firstErr error
	)
	for _, orgID := range orgIDs {
		entry, err := audit.NewEntry(orgID, audit.ActionPrune, audit.ResourceInvitation, orgID.String())
		if err != nil {
			return total, fmt.Errorf("build prune audit entry: %w", err)
		}
		entry.WithContext("cutoff", cutoff.Format(time.RFC3339))

		deleted, err := s.invitations.DeleteExpired(ctx, orgID, cutoff, entry)
		if err != nil {
			s.logger.Error("failed to prune expired invitations",
				"organization_id", orgID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += deleted
	}

	if total > 0 {
		metrics.InvitationsTotal.WithLabelValues("expired_pruned").Add(float64(total))
		s.logger.Info("expired invitations pruned",
			"deleted", total,
			"organizations", len(orgIDs),
			"cutoff", cutoff,
		)
	}
	return total, firstErr
}

// auditExportRow is the archived JSONL representation of an audit entry.
type auditExportRow struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ActorID        string         `json:"actor_id,omitempty"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Context        map[string]any `json:"context,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ArchiveAuditEntries exports audit rows older than the retention window to
// archive storage and deletes them. The export runs in batches; each batch
// is deleted only after its upload succeeded, so an interrupted run leaves
// rows in place for the next one. Returns the number of rows archived.
func (s *MaintenanceService) ArchiveAuditEntries(ctx context.Context) (int64, error) {
	if s.cfg.AuditRetentionDays <= 0 || s.uploader == nil {
		return 0, nil
	}

	start := s.now().UTC()
	cutoff := start.AddDate(0, 0, -s.cfg.AuditRetentionDays)

	batchSize := s.cfg.AuditArchiveBatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}

	total, err := s.auditRepo.CountOlderThan(ctx, cutoff)
	if err != nil {
		metrics.RecordArchiveRun("failed")
		return 0, fmt.Errorf("count archivable audit entries: %w", err)
	}
	if total == 0 {
		metrics.RecordArchiveRun("empty")
		return 0, nil
	}

	runStamp := start.Format("20060102T150405Z")
	perOrg := make(map[shared.ID]int64)

	var archived int64
	for part := 0; ; part++ {
		entries, err := s.auditRepo.ListOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			metrics.RecordArchiveRun("failed")
			return archived, fmt.Errorf("list archivable audit entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		payload, err := encodeAuditJSONL(entries)
		if err != nil {
			metrics.RecordArchiveRun("failed")
			return archived, err
		}

		key := fmt.Sprintf("%s/audit-%s-part%04d.jsonl",
			start.Format("2006/01"), runStamp, part)
		location, err := s.uploader.Upload(ctx, key, payload)
		if err != nil {
			metrics.RecordArchiveRun("failed")
			return archived, fmt.Errorf("upload audit batch: %w", err)
		}

		ids := make([]shared.ID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID()
			perOrg[e.OrganizationID()]++
		}
		deleted, err := s.auditRepo.DeleteByIDs(ctx, ids)
		if err != nil {
			metrics.RecordArchiveRun("failed")
			return archived, fmt.Errorf("delete archived audit entries: %w", err)
		}
		archived += deleted

		s.logger.Info("audit batch archived",
			"key", location,
			"entries", len(entries),
		)

		if len(entries) < batchSize {
			break
		}
	}

	// Record the run in each affected organization's own trail.
	for orgID, count := range perOrg {
		entry, err := audit.NewEntry(orgID, audit.ActionArchive, audit.ResourceAuditLog, orgID.String())
		if err != nil {
			return archived, fmt.Errorf("build archive audit entry: %w", err)
		}
		entry.WithContext("archived", count)
		entry.WithContext("cutoff", cutoff.Format(time.RFC3339))

		if err := s.auditRepo.Create(ctx, entry); err != nil {
			s.logger.Error("failed to record archive run",
				"organization_id", orgID,
				"error", err,
			)
		}
	}

	metrics.RecordArchiveRun("success")
	metrics.RecordArchivedEntries(archived)
	metrics.ObserveArchiveDuration(time.Since(start).Seconds())

	s.logger.Info("audit archive run finished",
		"archived", archived,
		"organizations", len(perOrg),
		"cutoff", cutoff,
		"duration", time.Since(start),
	)
	return archived, nil
}

// encodeAuditJSONL renders entries as one JSON object per line, oldest first.
func encodeAuditJSONL(entries []*audit.Entry) ([]byte, error) {
	var buf []byte
	for _, e := range entries {
		row := auditExportRow{
			ID:             e.ID().String(),
			OrganizationID: e.OrganizationID().String(),
			Action:         e.Action().String(),
			ResourceType:   e.ResourceType().String(),
			ResourceID:     e.ResourceID(),
			Context:        e.Context(),
			CreatedAt:      e.CreatedAt(),
		}
		if actor := e.ActorID(); actor != nil {
			row.ActorID = actor.String()
		}

		line, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("encode audit entry %s: %w", e.ID(), err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}
