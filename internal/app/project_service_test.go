package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

func TestProjectService_Create(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	lead := env.addUser("lead@example.com", "Lead")
	dev := env.addUser("dev@example.com", "Dev")
	org := env.seedOrg("Acme", owner)
	env.seedOrgMember(org.ID(), lead, organization.RoleMember)
	env.seedOrgMember(org.ID(), dev, organization.RoleMember)
	tm := env.seedTeam(org.ID(), "Platform", owner)
	env.seedTeamMember(tm.ID(), org.ID(), lead, team.RoleLead)
	env.seedTeamMember(tm.ID(), org.ID(), dev, team.RoleMember)

	leadTC := orgContext(lead, org.ID(), organization.RoleMember).WithTeam(tm.ID(), team.RoleLead)

	t.Run("team lead creates a project without becoming a member of it", func(t *testing.T) {
		created, err := env.projectService.Create(ctx, leadTC, CreateProjectInput{Name: "Rewrite"})
		require.NoError(t, err)
		assert.True(t, created.TeamID().Equals(tm.ID()))

		_, err = env.projects.GetMember(ctx, created.ID(), lead)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		entry := env.store.lastAudit()
		assert.Equal(t, audit.ActionCreate, entry.Action())
		assert.Equal(t, audit.ResourceProject, entry.ResourceType())
	})

	t.Run("team member cannot create projects", func(t *testing.T) {
		devTC := orgContext(dev, org.ID(), organization.RoleMember).WithTeam(tm.ID(), team.RoleMember)
		_, err := env.projectService.Create(ctx, devTC, CreateProjectInput{Name: "Side Quest"})

		var denied *shared.PermissionDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, "team", denied.Resource)
		assert.Equal(t, team.RoleLead.String(), denied.RequiredRole)
	})

	t.Run("no new projects under a deleted team", func(t *testing.T) {
		_, err := env.teamService.SoftDelete(ctx, orgContext(owner, org.ID(), organization.RoleOwner).WithTeam(tm.ID(), ""))
		require.NoError(t, err)

		_, err = env.projectService.Create(ctx, leadTC, CreateProjectInput{Name: "Too Late"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestProjectService_Get(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	alice := env.addUser("alice@example.com", "Alice")
	bob := env.addUser("bob@example.com", "Bob")
	orgA := env.seedOrg("Org A", alice)
	orgB := env.seedOrg("Org B", bob)
	teamB := env.seedTeam(orgB.ID(), "Secret", bob)
	projB := env.seedProject(teamB.ID(), orgB.ID(), "Hidden", bob)

	t.Run("org member reads any project in the organization", func(t *testing.T) {
		got, err := env.projectService.Get(ctx, orgContext(bob, orgB.ID(), organization.RoleOwner), projB.ID(), false)
		require.NoError(t, err)
		assert.Equal(t, "Hidden", got.Name())
	})

	t.Run("a project from another organization reads as not found", func(t *testing.T) {
		_, err := env.projectService.Get(ctx, orgContext(alice, orgA.ID(), organization.RoleOwner), projB.ID(), false)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NotErrorIs(t, err, shared.ErrPermissionDenied)
	})
}

func TestProjectService_Update(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	lead := env.addUser("lead@example.com", "Lead")
	manager := env.addUser("manager@example.com", "Manager")
	contributor := env.addUser("contrib@example.com", "Contributor")
	org := env.seedOrg("Acme", owner)
	env.seedOrgMember(org.ID(), lead, organization.RoleMember)
	env.seedOrgMember(org.ID(), manager, organization.RoleMember)
	env.seedOrgMember(org.ID(), contributor, organization.RoleMember)
	tm := env.seedTeam(org.ID(), "Platform", owner)
	env.seedTeamMember(tm.ID(), org.ID(), lead, team.RoleLead)
	proj := env.seedProject(tm.ID(), org.ID(), "Rewrite", owner)
	env.seedProjectMember(proj.ID(), org.ID(), manager, project.RoleManager)
	env.seedProjectMember(proj.ID(), org.ID(), contributor, project.RoleContributor)

	managerTC := orgContext(manager, org.ID(), organization.RoleMember).WithProject(proj.ID(), project.RoleManager, "")

	t.Run("project manager renames", func(t *testing.T) {
		name := "Rewrite v2"
		got, err := env.projectService.Update(ctx, managerTC, UpdateProjectInput{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Rewrite v2", got.Name())
	})

	t.Run("lead of the owning team passes without project membership", func(t *testing.T) {
		desc := "The big one."
		leadTC := orgContext(lead, org.ID(), organization.RoleMember).WithProject(proj.ID(), "", team.RoleLead)
		_, err := env.projectService.Update(ctx, leadTC, UpdateProjectInput{Description: &desc})
		assert.NoError(t, err)
	})

	t.Run("contributor is denied with the manager requirement", func(t *testing.T) {
		name := "Mine Now"
		contribTC := orgContext(contributor, org.ID(), organization.RoleMember).WithProject(proj.ID(), project.RoleContributor, "")
		_, err := env.projectService.Update(ctx, contribTC, UpdateProjectInput{Name: &name})

		var denied *shared.PermissionDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, "project", denied.Resource)
		assert.Equal(t, project.RoleManager.String(), denied.RequiredRole)
	})

	t.Run("no-op update writes no audit entry", func(t *testing.T) {
		before := env.store.auditCount()
		name := "Rewrite v2"
		_, err := env.projectService.Update(ctx, managerTC, UpdateProjectInput{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, before, env.store.auditCount())
	})
}

func TestProjectService_SoftDeleteCascade(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	org := env.seedOrg("Acme", owner)
	tm := env.seedTeam(org.ID(), "Platform", owner)
	proj := env.seedProject(tm.ID(), org.ID(), "Rewrite", owner)
	live := env.seedTask(proj.ID(), org.ID(), "Draft plan", owner)
	gone := env.seedTask(proj.ID(), org.ID(), "Old chore", owner)

	projTC := orgContext(owner, org.ID(), organization.RoleOwner).WithProject(proj.ID(), "", "")

	// One task was deleted on its own an hour earlier. The project recover
	// must leave it alone.
	preEntry, err := audit.NewEntry(org.ID(), audit.ActionSoftDelete, audit.ResourceTask, gone.ID().String())
	require.NoError(t, err)
	require.NoError(t, env.tasks.SoftDelete(ctx, org.ID(), gone.ID(), time.Now().Add(-time.Hour).UTC(), preEntry))

	t.Run("delete stamps the project and its live tasks", func(t *testing.T) {
		cascaded, err := env.projectService.SoftDelete(ctx, projTC)
		require.NoError(t, err)
		assert.Equal(t, int64(1), cascaded)

		deletedProj, err := env.projects.GetByID(ctx, org.ID(), proj.ID(), true)
		require.NoError(t, err)
		deletedTask, err := env.tasks.GetByID(ctx, org.ID(), live.ID(), true)
		require.NoError(t, err)
		require.NotNil(t, deletedProj.DeletedAt())
		assert.Equal(t, *deletedProj.DeletedAt(), *deletedTask.DeletedAt())
		assert.Equal(t, int64(1), env.store.lastAudit().Context()["cascaded_tasks"])
	})

	t.Run("second delete reports already deleted", func(t *testing.T) {
		_, err := env.projectService.SoftDelete(ctx, projTC)
		assert.ErrorIs(t, err, shared.ErrAlreadyDeleted)
	})

	t.Run("recover resurrects exactly what the delete stamped", func(t *testing.T) {
		recovered, err := env.projectService.Recover(ctx, projTC)
		require.NoError(t, err)
		assert.Equal(t, int64(1), recovered)

		_, err = env.tasks.GetByID(ctx, org.ID(), live.ID(), false)
		assert.NoError(t, err)

		stillGone, err := env.tasks.GetByID(ctx, org.ID(), gone.ID(), true)
		require.NoError(t, err)
		assert.True(t, stillGone.IsDeleted())
	})

	t.Run("contributor cannot delete the project", func(t *testing.T) {
		bob := env.addUser("bob@example.com", "Bob")
		env.seedOrgMember(org.ID(), bob, organization.RoleMember)
		env.seedProjectMember(proj.ID(), org.ID(), bob, project.RoleContributor)

		bobTC := orgContext(bob, org.ID(), organization.RoleMember).WithProject(proj.ID(), project.RoleContributor, "")
		_, err := env.projectService.SoftDelete(ctx, bobTC)

		var denied *shared.PermissionDeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, project.RoleManager.String(), denied.RequiredRole)
	})
}

func TestProjectService_AddMember(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	manager := env.addUser("manager@example.com", "Manager")
	teammate := env.addUser("teammate@example.com", "Teammate")
	orgOnly := env.addUser("orgonly@example.com", "Org Only")
	org := env.seedOrg("Acme", owner)
	env.seedOrgMember(org.ID(), manager, organization.RoleMember)
	env.seedOrgMember(org.ID(), teammate, organization.RoleMember)
	env.seedOrgMember(org.ID(), orgOnly, organization.RoleMember)
	tm := env.seedTeam(org.ID(), "Platform", owner)
	env.seedTeamMember(tm.ID(), org.ID(), manager, team.RoleMember)
	env.seedTeamMember(tm.ID(), org.ID(), teammate, team.RoleMember)
	proj := env.seedProject(tm.ID(), org.ID(), "Rewrite", owner)
	env.seedProjectMember(proj.ID(), org.ID(), manager, project.RoleManager)

	managerTC := orgContext(manager, org.ID(), organization.RoleMember).WithProject(proj.ID(), project.RoleManager, team.RoleMember)

	t.Run("manager adds a member of the owning team", func(t *testing.T) {
		m, err := env.projectService.AddMember(ctx, managerTC, AddProjectMemberInput{
			UserID: teammate.String(),
			Role:   project.RoleContributor.String(),
		})
		require.NoError(t, err)
		assert.Equal(t, project.RoleContributor, m.Role())

		entry := env.store.lastAudit()
		assert.Equal(t, audit.ActionAddMember, entry.Action())
		assert.Equal(t, "project", entry.Context()["level"])
	})

	t.Run("duplicate membership reports already exists", func(t *testing.T) {
		_, err := env.projectService.AddMember(ctx, managerTC, AddProjectMemberInput{
			UserID: teammate.String(),
			Role:   project.RoleContributor.String(),
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("org member outside the owning team cannot join", func(t *testing.T) {
		_, err := env.projectService.AddMember(ctx, managerTC, AddProjectMemberInput{
			UserID: orgOnly.String(),
			Role:   project.RoleViewer.String(),
		})
		assert.ErrorIs(t, err, shared.ErrPrerequisiteMembership)
	})
}

func TestProjectService_MemberLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	owner := env.addUser("owner@example.com", "Owner")
	viewer := env.addUser("viewer@example.com", "Viewer")
	org := env.seedOrg("Acme", owner)
	env.seedOrgMember(org.ID(), viewer, organization.RoleMember)
	tm := env.seedTeam(org.ID(), "Platform", owner)
	env.seedTeamMember(tm.ID(), org.ID(), viewer, team.RoleMember)
	proj := env.seedProject(tm.ID(), org.ID(), "Rewrite", owner)
	env.seedProjectMember(proj.ID(), org.ID(), viewer, project.RoleViewer)

	ownerTC := orgContext(owner, org.ID(), organization.RoleOwner).WithProject(proj.ID(), "", "")

	t.Run("promote records the previous role", func(t *testing.T) {
		m, err := env.projectService.UpdateMemberRole(ctx, ownerTC, viewer, UpdateProjectMemberRoleInput{Role: project.RoleContributor.String()})
		require.NoError(t, err)
		assert.Equal(t, project.RoleContributor, m.Role())

		entry := env.store.lastAudit()
		assert.Equal(t, audit.ActionUpdateMemberRole, entry.Action())
		assert.Equal(t, project.RoleViewer.String(), entry.Context()["previous_role"])
	})

	t.Run("same role writes no audit entry", func(t *testing.T) {
		before := env.store.auditCount()
		_, err := env.projectService.UpdateMemberRole(ctx, ownerTC, viewer, UpdateProjectMemberRoleInput{Role: project.RoleContributor.String()})
		require.NoError(t, err)
		assert.Equal(t, before, env.store.auditCount())
	})

	t.Run("remove drops the membership", func(t *testing.T) {
		require.NoError(t, env.projectService.RemoveMember(ctx, ownerTC, viewer))
		_, err := env.projects.GetMember(ctx, proj.ID(), viewer)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
