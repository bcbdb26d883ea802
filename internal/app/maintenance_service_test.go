package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
)

type captureUploader struct {
	keys     []string
	payloads [][]byte
}

func (u *captureUploader) Upload(_ context.Context, key string, payload []byte) (string, error) {
	u.keys = append(u.keys, key)
	u.payloads = append(u.payloads, payload)
	return "s3://archive/" + key, nil
}

type failingUploader struct{}

func (failingUploader) Upload(context.Context, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

// seedInvitationRow plants an invitation with a chosen expiry directly in the
// store, past states included.
func seedInvitationRow(env *testEnv, orgID shared.ID, email, token string, invitedBy shared.ID, expiresAt time.Time, acceptedAt *time.Time, acceptedBy *shared.ID) *invitation.Invitation {
	inv := invitation.Reconstitute(
		shared.NewID(), orgID, email, organization.RoleMember,
		nil, "", nil, "",
		token, invitedBy, expiresAt, acceptedAt, acceptedBy,
		expiresAt.Add(-invitation.DefaultExpiry),
	)
	env.store.mu.Lock()
	env.store.invitations[inv.ID()] = inv
	env.store.mu.Unlock()
	return inv
}

func TestMaintenanceService_PruneExpiredInvitations(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	admin := env.addUser("admin@example.com", "Admin")
	org := env.seedOrg("Acme", admin)
	now := time.Now().UTC()

	seedInvitationRow(env, org.ID(), "stale@example.com", "tok-stale", admin, now.AddDate(0, 0, -10), nil, nil)
	recent := seedInvitationRow(env, org.ID(), "recent@example.com", "tok-recent", admin, now.AddDate(0, 0, -2), nil, nil)
	acceptedAt := now.AddDate(0, 0, -30)
	accepted := seedInvitationRow(env, org.ID(), "done@example.com", "tok-done", admin, now.AddDate(0, 0, -20), &acceptedAt, &admin)

	svc := NewMaintenanceService(env.invitations, env.audits, nil,
		config.MaintenanceConfig{InvitationGraceDays: 7}, logger.NewNop())

	deleted, err := svc.PruneExpiredInvitations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = env.invitations.GetByToken(ctx, "tok-stale")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = env.invitations.GetByID(ctx, org.ID(), recent.ID())
	assert.NoError(t, err, "expired rows inside the grace window stay")
	_, err = env.invitations.GetByID(ctx, org.ID(), accepted.ID())
	assert.NoError(t, err, "accepted rows are never pruned")

	entry := env.store.lastAudit()
	require.NotNil(t, entry)
	assert.Equal(t, audit.ActionPrune, entry.Action())
	assert.Equal(t, audit.ResourceInvitation, entry.ResourceType())
	assert.Equal(t, int64(1), entry.Context()["deleted"])

	t.Run("a clean run writes no audit entry", func(t *testing.T) {
		before := env.store.auditCount()
		deleted, err := svc.PruneExpiredInvitations(ctx)
		require.NoError(t, err)
		assert.Zero(t, deleted)
		assert.Equal(t, before, env.store.auditCount())
	})
}

func TestMaintenanceService_ArchiveAuditEntries(t *testing.T) {
	newArchiveEnv := func(t *testing.T) (*testEnv, shared.ID) {
		t.Helper()
		env := newTestEnv()
		org := shared.NewID()
		actor := shared.NewID()
		aged := func(days int, action audit.Action) *audit.Entry {
			return audit.Reconstitute(
				shared.NewID(), org, &actor, action, audit.ResourceTeam,
				shared.NewID().String(), map[string]any{"name": "x"},
				time.Now().UTC().AddDate(0, 0, -days),
			)
		}
		env.store.mu.Lock()
		env.store.appendAudit(aged(100, audit.ActionCreate))
		env.store.appendAudit(aged(95, audit.ActionUpdate))
		env.store.appendAudit(aged(90, audit.ActionSoftDelete))
		env.store.mu.Unlock()

		fresh, err := audit.NewEntry(org, audit.ActionRecover, audit.ResourceTeam, shared.NewID().String())
		require.NoError(t, err)
		env.store.mu.Lock()
		env.store.appendAudit(fresh)
		env.store.mu.Unlock()
		return env, org
	}

	t.Run("exports in batches, oldest first, and deletes after upload", func(t *testing.T) {
		env, _ := newArchiveEnv(t)
		uploader := &captureUploader{}
		svc := NewMaintenanceService(env.invitations, env.audits, uploader,
			config.MaintenanceConfig{AuditRetentionDays: 60, AuditArchiveBatchSize: 2}, logger.NewNop())

		archived, err := svc.ArchiveAuditEntries(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), archived)

		require.Len(t, uploader.keys, 2)
		assert.Contains(t, uploader.keys[0], "part0000")
		assert.Contains(t, uploader.keys[1], "part0001")

		lines := strings.Split(strings.TrimSpace(string(uploader.payloads[0])), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"action":"create"`)
		assert.Contains(t, lines[1], `"action":"update"`)

		marker := env.store.lastAudit()
		assert.Equal(t, audit.ActionArchive, marker.Action())
		assert.Equal(t, audit.ResourceAuditLog, marker.ResourceType())
		assert.Equal(t, int64(3), marker.Context()["archived"])

		// The fresh entry and the run marker are all that is left.
		assert.Equal(t, 2, env.store.auditCount())
	})

	t.Run("a failed upload leaves every row in place", func(t *testing.T) {
		env, _ := newArchiveEnv(t)
		svc := NewMaintenanceService(env.invitations, env.audits, failingUploader{},
			config.MaintenanceConfig{AuditRetentionDays: 60, AuditArchiveBatchSize: 2}, logger.NewNop())

		archived, err := svc.ArchiveAuditEntries(context.Background())
		assert.Error(t, err)
		assert.Zero(t, archived)
		assert.Equal(t, 4, env.store.auditCount())
	})

	t.Run("zero retention disables the run", func(t *testing.T) {
		env, _ := newArchiveEnv(t)
		uploader := &captureUploader{}
		svc := NewMaintenanceService(env.invitations, env.audits, uploader,
			config.MaintenanceConfig{AuditRetentionDays: 0}, logger.NewNop())

		archived, err := svc.ArchiveAuditEntries(context.Background())
		require.NoError(t, err)
		assert.Zero(t, archived)
		assert.Empty(t, uploader.keys)
	})

	t.Run("no uploader reports zero work", func(t *testing.T) {
		env, _ := newArchiveEnv(t)
		svc := NewMaintenanceService(env.invitations, env.audits, nil,
			config.MaintenanceConfig{AuditRetentionDays: 60}, logger.NewNop())

		archived, err := svc.ArchiveAuditEntries(context.Background())
		require.NoError(t, err)
		assert.Zero(t, archived)
	})
}
