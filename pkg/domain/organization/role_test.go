package organization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Rank_TotalOrder(t *testing.T) {
	assert.Greater(t, RoleOwner.Rank(), RoleAdmin.Rank())
	assert.Greater(t, RoleAdmin.Rank(), RoleMember.Rank())
	assert.Greater(t, RoleMember.Rank(), Role("intruder").Rank())
}

func TestRole_Meets_Monotonic(t *testing.T) {
	// If a role meets a requirement, every higher-ranked role meets it too.
	roles := Roles()
	for _, required := range roles {
		for i, actual := range roles {
			if actual.Meets(required) {
				for _, higher := range roles[:i] {
					assert.True(t, higher.Meets(required),
						"%s meets %s but higher role %s does not", actual, required, higher)
				}
			}
		}
	}
}

func TestRole_Meets(t *testing.T) {
	tests := []struct {
		name     string
		actual   Role
		required Role
		want     bool
	}{
		{"owner meets owner", RoleOwner, RoleOwner, true},
		{"owner meets admin", RoleOwner, RoleAdmin, true},
		{"admin meets admin", RoleAdmin, RoleAdmin, true},
		{"admin does not meet owner", RoleAdmin, RoleOwner, false},
		{"member meets member", RoleMember, RoleMember, true},
		{"member does not meet admin", RoleMember, RoleAdmin, false},
		{"unknown role meets nothing", Role("superuser"), RoleMember, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actual.Meets(tt.required))
		})
	}
}

func TestRole_InheritsTeamAccess(t *testing.T) {
	assert.True(t, RoleOwner.InheritsTeamAccess())
	assert.True(t, RoleAdmin.InheritsTeamAccess())
	assert.False(t, RoleMember.InheritsTeamAccess())
	assert.False(t, Role("").InheritsTeamAccess())
}

func TestRole_CanAssign(t *testing.T) {
	tests := []struct {
		name   string
		actor  Role
		target Role
		want   bool
	}{
		{"owner assigns owner", RoleOwner, RoleOwner, true},
		{"owner assigns member", RoleOwner, RoleMember, true},
		{"admin assigns admin", RoleAdmin, RoleAdmin, true},
		{"admin assigns member", RoleAdmin, RoleMember, true},
		{"admin cannot mint owner", RoleAdmin, RoleOwner, false},
		{"member assigns nothing", RoleMember, RoleMember, false},
		{"nobody assigns unknown roles", RoleOwner, Role("root"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.CanAssign(tt.target))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, r)

	_, ok = ParseRole("administrator")
	assert.False(t, ok)

	_, ok = ParseRole("")
	assert.False(t, ok)
}
