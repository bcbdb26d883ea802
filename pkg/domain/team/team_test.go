package team

import (
	"testing"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

func TestRole_Meets(t *testing.T) {
	tests := []struct {
		name     string
		actual   Role
		required Role
		want     bool
	}{
		{"lead meets lead", RoleLead, RoleLead, true},
		{"lead meets member", RoleLead, RoleMember, true},
		{"member meets member", RoleMember, RoleMember, true},
		{"member does not meet lead", RoleMember, RoleLead, false},
		{"unknown meets nothing", Role("captain"), RoleMember, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actual.Meets(tt.required); got != tt.want {
				t.Errorf("Meets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTeam(t *testing.T) {
	orgID := shared.NewID()
	creator := shared.NewID()

	team, err := NewTeam(orgID, "Engineering", "builds the product", creator)
	if err != nil {
		t.Fatalf("NewTeam() unexpected error: %v", err)
	}
	if team.OrganizationID() != orgID {
		t.Errorf("OrganizationID = %v, want %v", team.OrganizationID(), orgID)
	}
	if team.IsDeleted() {
		t.Error("new team should not be deleted")
	}

	if _, err := NewTeam(shared.ID{}, "Engineering", "", creator); err == nil {
		t.Error("NewTeam() should reject zero organization ID")
	}
	if _, err := NewTeam(orgID, "", "", creator); err == nil {
		t.Error("NewTeam() should reject empty name")
	}
}

func TestTeam_Lifecycle(t *testing.T) {
	team, _ := NewTeam(shared.NewID(), "Engineering", "", shared.NewID())

	stamp := time.Now().UTC()
	if err := team.SoftDelete(stamp); err != nil {
		t.Fatalf("SoftDelete() unexpected error: %v", err)
	}
	if err := team.SoftDelete(stamp); err == nil {
		t.Error("second SoftDelete() should fail")
	}
	if err := team.Recover(); err != nil {
		t.Fatalf("Recover() unexpected error: %v", err)
	}
	if err := team.Recover(); err == nil {
		t.Error("Recover() on active team should fail")
	}
}

func TestNewMember_RejectsUnknownRole(t *testing.T) {
	actor := shared.NewID()
	_, err := NewMember(shared.NewID(), shared.NewID(), shared.NewID(), Role("captain"), &actor)
	if err == nil {
		t.Error("NewMember() should reject unknown role")
	}
}
