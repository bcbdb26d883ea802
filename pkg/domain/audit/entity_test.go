package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/shared"
)

func TestNewEntry(t *testing.T) {
	orgID := shared.NewID()
	resourceID := shared.NewID().String()

	t.Run("valid", func(t *testing.T) {
		entry, err := NewEntry(orgID, ActionCreate, ResourceTeam, resourceID)
		require.NoError(t, err)
		assert.Equal(t, orgID, entry.OrganizationID())
		assert.Equal(t, ActionCreate, entry.Action())
		assert.Equal(t, ResourceTeam, entry.ResourceType())
		assert.True(t, entry.IsSystemAction())
	})

	tests := []struct {
		name         string
		orgID        shared.ID
		action       Action
		resourceType ResourceType
		resourceID   string
	}{
		{"zero organization", shared.ID{}, ActionCreate, ResourceTeam, resourceID},
		{"unknown action", orgID, Action("destroy"), ResourceTeam, resourceID},
		{"unknown resource type", orgID, ActionCreate, ResourceType("cluster"), resourceID},
		{"empty resource id", orgID, ActionCreate, ResourceTeam, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntry(tt.orgID, tt.action, tt.resourceType, tt.resourceID)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestEntry_Builder(t *testing.T) {
	orgID := shared.NewID()
	actor := shared.NewID()

	entry, err := NewEntry(orgID, ActionSoftDelete, ResourceProject, shared.NewID().String())
	require.NoError(t, err)

	entry.WithActor(actor).WithContext("cascaded_tasks", 7)

	require.NotNil(t, entry.ActorID())
	assert.Equal(t, actor, *entry.ActorID())
	assert.False(t, entry.IsSystemAction())
	assert.Equal(t, 7, entry.Context()["cascaded_tasks"])
}
