package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/shared"
)

func TestAuditService_List(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	admin := env.addUser("admin@example.com", "Admin")
	rival := env.addUser("rival@example.com", "Rival")
	org := env.seedOrg("Acme", owner)
	env.seedOrgMember(org.ID(), admin, organization.RoleAdmin)
	rivalOrg := env.seedOrg("Rival Co", rival)

	ownerTC := orgContext(owner, org.ID(), organization.RoleOwner)
	adminTC := orgContext(admin, org.ID(), organization.RoleAdmin)

	tm, err := env.teamService.Create(ctx, ownerTC, CreateTeamInput{Name: "Platform"})
	require.NoError(t, err)
	teamTC := ownerTC.WithTeam(tm.ID(), "")
	_, err = env.teamService.SoftDelete(ctx, teamTC)
	require.NoError(t, err)
	_, err = env.teamService.Recover(ctx, teamTC)
	require.NoError(t, err)
	_, err = env.teamService.Create(ctx, adminTC, CreateTeamInput{Name: "Design"})
	require.NoError(t, err)

	// Noise in another tenant must never show up.
	_, err = env.teamService.Create(ctx, orgContext(rival, rivalOrg.ID(), organization.RoleOwner), CreateTeamInput{Name: "Platform"})
	require.NoError(t, err)

	t.Run("admin sees the own organization's trail only", func(t *testing.T) {
		result, err := env.auditService.List(ctx, adminTC, ListAuditInput{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), result.Total)
		for _, e := range result.Data {
			assert.True(t, e.OrganizationID().Equals(org.ID()))
		}
	})

	t.Run("action filter narrows the trail", func(t *testing.T) {
		result, err := env.auditService.List(ctx, adminTC, ListAuditInput{
			Actions: []string{audit.ActionSoftDelete.String(), audit.ActionRecover.String()},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.Total)
	})

	t.Run("actor filter narrows the trail", func(t *testing.T) {
		result, err := env.auditService.List(ctx, adminTC, ListAuditInput{ActorID: admin.String()})
		require.NoError(t, err)
		require.Equal(t, int64(1), result.Total)
		assert.Equal(t, audit.ActionCreate, result.Data[0].Action())
	})

	t.Run("resource filter narrows the trail", func(t *testing.T) {
		result, err := env.auditService.List(ctx, adminTC, ListAuditInput{
			ResourceTypes: []string{audit.ResourceTeam.String()},
			ResourceID:    tm.ID().String(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.Total)
	})

	t.Run("future window is empty", func(t *testing.T) {
		since := time.Now().Add(time.Hour)
		result, err := env.auditService.List(ctx, adminTC, ListAuditInput{Since: &since})
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.Total)
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		_, err := env.auditService.List(ctx, adminTC, ListAuditInput{Actions: []string{"obliterate"}})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("until before since is rejected", func(t *testing.T) {
		since := time.Now()
		until := since.Add(-time.Hour)
		_, err := env.auditService.List(ctx, adminTC, ListAuditInput{Since: &since, Until: &until})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("member cannot read the trail", func(t *testing.T) {
		member := env.addUser("member@example.com", "Member")
		env.seedOrgMember(org.ID(), member, organization.RoleMember)
		_, err := env.auditService.List(ctx, orgContext(member, org.ID(), organization.RoleMember), ListAuditInput{})

		var denied *shared.PermissionDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, organization.RoleAdmin.String(), denied.RequiredRole)
	})
}
