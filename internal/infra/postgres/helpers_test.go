package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/taskforge/api/pkg/domain/shared"
)

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "organization slug",
			err:  &pq.Error{Code: "23505", Constraint: "uq_organizations_slug"},
			want: shared.ErrDuplicateSlug,
		},
		{
			name: "team name",
			err:  &pq.Error{Code: "23505", Constraint: "uq_teams_org_name_live"},
			want: shared.ErrDuplicateName,
		},
		{
			name: "project name",
			err:  &pq.Error{Code: "23505", Constraint: "uq_projects_team_name_live"},
			want: shared.ErrDuplicateName,
		},
		{
			name: "organization membership",
			err:  &pq.Error{Code: "23505", Constraint: "uq_organization_members_org_user"},
			want: shared.ErrAlreadyExists,
		},
		{
			name: "pending invitation",
			err:  &pq.Error{Code: "23505", Constraint: "uq_invitations_org_email_pending"},
			want: shared.ErrAlreadyExists,
		},
		{
			name: "wrapped violation",
			err:  fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Constraint: "uq_organizations_slug"}),
			want: shared.ErrDuplicateSlug,
		},
		{
			name: "foreign key violation is not mapped",
			err:  &pq.Error{Code: "23503", Constraint: "organization_members_user_id_fkey"},
			want: nil,
		},
		{
			name: "plain error is not mapped",
			err:  errors.New("connection refused"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := uniqueViolation(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestEscapeLikePattern(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"50%", `50\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLikePattern(tt.input))
		})
	}
}

func TestNullIDRoundTrip(t *testing.T) {
	id := shared.NewID()

	ns := nullID(&id)
	assert.True(t, ns.Valid)

	back, err := nullIDValue(ns)
	assert.NoError(t, err)
	assert.True(t, id.Equals(*back))

	empty, err := nullIDValue(nullID(nil))
	assert.NoError(t, err)
	assert.Nil(t, empty)
}

func TestToJSONBNilMap(t *testing.T) {
	data, err := toJSONB(nil)
	assert.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
