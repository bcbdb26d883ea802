package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createTeamInput struct {
	Name string `validate:"required,min=1,max=200"`
	Role string `validate:"omitempty,team_role"`
}

type inviteInput struct {
	Email   string `validate:"required,email"`
	OrgRole string `validate:"required,org_role"`
	Slug    string `validate:"omitempty,slug"`
}

func TestValidator_RoleEnums(t *testing.T) {
	v := New()

	t.Run("valid roles pass", func(t *testing.T) {
		assert.NoError(t, v.Validate(createTeamInput{Name: "Engineering", Role: "lead"}))
		assert.NoError(t, v.Validate(inviteInput{Email: "carol@example.com", OrgRole: "member"}))
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		err := v.Validate(createTeamInput{Name: "Engineering", Role: "captain"})
		require.Error(t, err)

		var verrs ValidationErrors
		require.True(t, errors.As(err, &verrs))
		require.Len(t, verrs, 1)
		assert.Equal(t, "role", verrs[0].Field)
		assert.Contains(t, verrs[0].Message, "must be one of")
	})

	t.Run("org role from another level rejected", func(t *testing.T) {
		err := v.Validate(inviteInput{Email: "carol@example.com", OrgRole: "lead"})
		assert.Error(t, err)
	})
}

func TestValidator_Slug(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(inviteInput{Email: "a@b.co", OrgRole: "member", Slug: "acme-corp"}))
	assert.Error(t, v.Validate(inviteInput{Email: "a@b.co", OrgRole: "member", Slug: "Acme Corp"}))
	assert.Error(t, v.Validate(inviteInput{Email: "a@b.co", OrgRole: "member", Slug: "-acme"}))
}

func TestValidator_RequiredAndEmail(t *testing.T) {
	v := New()

	err := v.Validate(inviteInput{Email: "not-an-email", OrgRole: ""})
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}
