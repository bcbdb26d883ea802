package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
)

func TestTeamRepositorySoftDeleteCascade(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTeamRepository(NewFromDB(db))
	orgID := shared.NewID()
	teamID := shared.NewID()
	stamp := time.Now().UTC()

	entry, err := audit.NewEntry(orgID, audit.ActionSoftDelete, audit.ResourceTeam, teamID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM teams").
		WithArgs(orgID.String(), teamID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(nil))
	mock.ExpectExec("UPDATE teams SET deleted_at").
		WithArgs(orgID.String(), teamID.String(), stamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Children are stamped with the exact same instant as the team.
	mock.ExpectExec("UPDATE tasks SET deleted_at").
		WithArgs(orgID.String(), teamID.String(), stamp).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("UPDATE projects SET deleted_at").
		WithArgs(orgID.String(), teamID.String(), stamp).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.SoftDeleteCascade(context.Background(), orgID, teamID, stamp, entry)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Projects)
	assert.Equal(t, int64(7), result.Tasks)
	assert.Equal(t, int64(3), entry.Context()["cascaded_projects"])
	assert.Equal(t, int64(7), entry.Context()["cascaded_tasks"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositorySoftDeleteCascadeAlreadyDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTeamRepository(NewFromDB(db))
	orgID := shared.NewID()
	teamID := shared.NewID()

	entry, err := audit.NewEntry(orgID, audit.ActionSoftDelete, audit.ResourceTeam, teamID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM teams").
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(time.Now().UTC()))
	mock.ExpectRollback()

	_, err = repo.SoftDeleteCascade(context.Background(), orgID, teamID, time.Now().UTC(), entry)
	assert.ErrorIs(t, err, shared.ErrAlreadyDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryRecoverCascadeMatchesStamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTeamRepository(NewFromDB(db))
	orgID := shared.NewID()
	teamID := shared.NewID()
	stamp := time.Now().UTC().Add(-time.Hour)

	entry, err := audit.NewEntry(orgID, audit.ActionRecover, audit.ResourceTeam, teamID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM teams").
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(stamp))
	mock.ExpectExec("UPDATE teams SET deleted_at = NULL").
		WithArgs(orgID.String(), teamID.String(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only children carrying the team's own stamp are resurrected.
	mock.ExpectExec("UPDATE tasks SET deleted_at = NULL").
		WithArgs(orgID.String(), teamID.String(), stamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("UPDATE projects SET deleted_at = NULL").
		WithArgs(orgID.String(), teamID.String(), stamp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RecoverCascade(context.Background(), orgID, teamID, entry)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Projects)
	assert.Equal(t, int64(5), result.Tasks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryRecoverCascadeNotDeleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTeamRepository(NewFromDB(db))
	orgID := shared.NewID()
	teamID := shared.NewID()

	entry, err := audit.NewEntry(orgID, audit.ActionRecover, audit.ResourceTeam, teamID.String())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT deleted_at FROM teams").
		WillReturnRows(sqlmock.NewRows([]string{"deleted_at"}).AddRow(nil))
	mock.ExpectRollback()

	_, err = repo.RecoverCascade(context.Background(), orgID, teamID, entry)
	assert.ErrorIs(t, err, shared.ErrNotDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeamRepositoryGetByIDScopedToOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewTeamRepository(NewFromDB(db))
	orgID := shared.NewID()
	foreignTeamID := shared.NewID()

	// The team exists in another organization; the scoped query returns no
	// rows, which must read as not found rather than anything more telling.
	mock.ExpectQuery("SELECT id, organization_id, name").
		WithArgs(orgID.String(), foreignTeamID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "name", "description", "created_by", "created_at", "updated_at", "deleted_at",
		}))

	_, err = repo.GetByID(context.Background(), orgID, foreignTeamID, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
