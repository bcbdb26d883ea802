package invitation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

func TestNewInvitation(t *testing.T) {
	orgID := shared.NewID()
	inviter := shared.NewID()

	t.Run("valid", func(t *testing.T) {
		inv, err := NewInvitation(orgID, "Carol@Example.com", organization.RoleMember, inviter)
		require.NoError(t, err)
		assert.Equal(t, "carol@example.com", inv.Email())
		assert.Equal(t, organization.RoleMember, inv.OrgRole())
		assert.NotEmpty(t, inv.Token())
		assert.True(t, inv.IsPending())
		assert.False(t, inv.IsAccepted())
		assert.WithinDuration(t, time.Now().Add(DefaultExpiry), inv.ExpiresAt(), time.Minute)
	})

	tests := []struct {
		name    string
		orgID   shared.ID
		email   string
		role    organization.Role
		inviter shared.ID
	}{
		{"zero organization", shared.ID{}, "carol@example.com", organization.RoleMember, inviter},
		{"empty email", orgID, "  ", organization.RoleMember, inviter},
		{"unknown role", orgID, "carol@example.com", organization.Role("god"), inviter},
		{"owner role", orgID, "carol@example.com", organization.RoleOwner, inviter},
		{"zero inviter", orgID, "carol@example.com", organization.RoleMember, shared.ID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInvitation(tt.orgID, tt.email, tt.role, tt.inviter)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestInvitation_Grants(t *testing.T) {
	inv, err := NewInvitation(shared.NewID(), "carol@example.com", organization.RoleMember, shared.NewID())
	require.NoError(t, err)

	teamID := shared.NewID()
	require.NoError(t, inv.GrantTeam(teamID, team.RoleMember))
	require.NotNil(t, inv.TeamID())
	assert.Equal(t, teamID, *inv.TeamID())
	assert.Equal(t, team.RoleMember, inv.TeamRole())

	projectID := shared.NewID()
	require.NoError(t, inv.GrantProject(projectID, project.RoleContributor))
	require.NotNil(t, inv.ProjectID())
	assert.Equal(t, project.RoleContributor, inv.ProjectRole())

	assert.Error(t, inv.GrantTeam(shared.ID{}, team.RoleMember))
	assert.Error(t, inv.GrantTeam(teamID, team.Role("captain")))
	assert.Error(t, inv.GrantProject(projectID, project.Role("lead")))
}

func TestInvitation_Accept(t *testing.T) {
	orgID := shared.NewID()
	inviter := shared.NewID()
	carol := shared.NewID()

	t.Run("accept pending", func(t *testing.T) {
		inv, _ := NewInvitation(orgID, "carol@example.com", organization.RoleMember, inviter)

		require.NoError(t, inv.Accept(carol))
		assert.True(t, inv.IsAccepted())
		require.NotNil(t, inv.AcceptedBy())
		assert.Equal(t, carol, *inv.AcceptedBy())
		assert.NotNil(t, inv.AcceptedAt())
	})

	t.Run("accept twice", func(t *testing.T) {
		inv, _ := NewInvitation(orgID, "carol@example.com", organization.RoleMember, inviter)
		require.NoError(t, inv.Accept(carol))

		err := inv.Accept(shared.NewID())
		assert.ErrorIs(t, err, shared.ErrInvitationAccepted)
	})

	t.Run("accept expired", func(t *testing.T) {
		inv, _ := NewInvitation(orgID, "carol@example.com", organization.RoleMember, inviter)
		expired := Reconstitute(
			inv.ID(), inv.OrganizationID(), inv.Email(), inv.OrgRole(),
			nil, "", nil, "",
			inv.Token(), inv.InvitedBy(),
			time.Now().UTC().Add(-time.Hour), nil, nil,
			inv.CreatedAt(),
		)

		err := expired.Accept(carol)
		assert.ErrorIs(t, err, shared.ErrInvitationExpired)
		assert.False(t, expired.IsAccepted())
	})

	t.Run("accepted then expired still reports accepted", func(t *testing.T) {
		carolID := carol
		acceptedAt := time.Now().UTC().Add(-2 * time.Hour)
		inv := Reconstitute(
			shared.NewID(), orgID, "carol@example.com", organization.RoleMember,
			nil, "", nil, "",
			"token", inviter,
			time.Now().UTC().Add(-time.Hour), &acceptedAt, &carolID,
			time.Now().UTC().Add(-3*time.Hour),
		)

		err := inv.Accept(shared.NewID())
		assert.ErrorIs(t, err, shared.ErrInvitationAccepted)
	})
}

func TestInvitation_TokensAreDistinct(t *testing.T) {
	orgID := shared.NewID()
	inviter := shared.NewID()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		inv, err := NewInvitation(orgID, "carol@example.com", organization.RoleMember, inviter)
		require.NoError(t, err)
		if _, dup := seen[inv.Token()]; dup {
			t.Fatalf("duplicate token after %d invitations", i)
		}
		seen[inv.Token()] = struct{}{}
	}
}
