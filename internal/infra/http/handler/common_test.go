package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
	"github.com/taskforge/api/pkg/validator"
)

func TestHandleServiceError(t *testing.T) {
	log := logger.NewNop()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apierror.Code
	}{
		{
			name:       "not found",
			err:        fmt.Errorf("%w: task", shared.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   apierror.CodeNotFound,
		},
		{
			name:       "domain validation",
			err:        fmt.Errorf("%w: title is required", shared.ErrValidation),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeValidationFailed,
		},
		{
			name:       "field validation",
			err:        validator.ValidationErrors{{Field: "name", Message: "required"}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierror.CodeValidationFailed,
		},
		{
			name:       "permission denied",
			err:        shared.DeniedPermission("task", "contributor"),
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeForbidden,
		},
		{
			name:       "missing tenant context",
			err:        shared.ErrMissingTenantContext,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeMissingTenantContext,
		},
		{
			name:       "invalid tenant context",
			err:        fmt.Errorf("%w: caller is not a member", shared.ErrInvalidTenantContext),
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeInvalidTenantContext,
		},
		{
			name:       "prerequisite membership",
			err:        fmt.Errorf("%w: user must be an organization member", shared.ErrPrerequisiteMembership),
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodePrerequisiteMissing,
		},
		{
			name:       "last owner",
			err:        shared.ErrLastOwner,
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeLastOwner,
		},
		{
			name:       "duplicate name",
			err:        fmt.Errorf("%w: %q", shared.ErrDuplicateName, "Platform"),
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeDuplicateName,
		},
		{
			name:       "duplicate slug",
			err:        fmt.Errorf("%w: %q", shared.ErrDuplicateSlug, "acme"),
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeDuplicateSlug,
		},
		{
			name:       "already deleted",
			err:        shared.ErrAlreadyDeleted,
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeAlreadyDeleted,
		},
		{
			name:       "not deleted",
			err:        shared.ErrNotDeleted,
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeNotDeleted,
		},
		{
			name:       "invitation expired",
			err:        shared.ErrInvitationExpired,
			wantStatus: http.StatusGone,
			wantCode:   apierror.CodeInvitationExpired,
		},
		{
			name:       "invitation accepted",
			err:        shared.ErrInvitationAccepted,
			wantStatus: http.StatusConflict,
			wantCode:   apierror.CodeInvitationAccepted,
		},
		{
			name:       "api error passthrough",
			err:        apierror.RateLimitExceeded(),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   apierror.CodeRateLimitExceeded,
		},
		{
			name:       "unknown error",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, log, "task", tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body apierror.Response
			assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, string(tt.wantCode), body.Error)
		})
	}
}

func TestPathID(t *testing.T) {
	t.Run("valid id", func(t *testing.T) {
		want := shared.NewID()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+want.String(), nil)
		req.SetPathValue("taskID", want.String())

		got, apiErr := pathID(req, "taskID", "task")

		assert.Nil(t, apiErr)
		assert.Equal(t, want, got)
	})

	t.Run("malformed id reads as not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/123", nil)
		req.SetPathValue("taskID", "123")

		_, apiErr := pathID(req, "taskID", "task")

		if assert.NotNil(t, apiErr) {
			assert.Equal(t, http.StatusNotFound, apiErr.Status)
			assert.Equal(t, apierror.CodeNotFound, apiErr.Code)
		}
	})
}

func TestParseQueryHelpers(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		assert.Nil(t, parseQueryArray(""))
		assert.Equal(t, []string{"todo", "done"}, parseQueryArray("todo,done"))
		assert.Equal(t, []string{"todo"}, parseQueryArray("todo"))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, 5, parseQueryInt("5", 1))
		assert.Equal(t, 1, parseQueryInt("", 1))
		assert.Equal(t, 1, parseQueryInt("abc", 1))
	})

	t.Run("bool", func(t *testing.T) {
		assert.True(t, parseQueryBool("true"))
		assert.True(t, parseQueryBool("1"))
		assert.False(t, parseQueryBool("yes"))
		assert.False(t, parseQueryBool(""))
	})

	t.Run("time", func(t *testing.T) {
		assert.Nil(t, parseQueryTime(""))
		assert.Nil(t, parseQueryTime("not-a-time"))

		got := parseQueryTime("2026-01-02T15:04:05Z")
		if assert.NotNil(t, got) {
			assert.Equal(t, "2026-01-02T15:04:05Z", got.Format(time.RFC3339))
		}
	})
}

func TestNewPaginationLinks(t *testing.T) {
	t.Run("middle page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://api.test/api/v1/tasks?status=todo&page=2&per_page=10", nil)

		links := NewPaginationLinks(req, 2, 10, 3)

		if !assert.NotNil(t, links) {
			return
		}
		assert.Contains(t, links.Self, "http://api.test/api/v1/tasks?")
		assert.Contains(t, links.Self, "page=2")
		assert.Contains(t, links.First, "page=1")
		assert.Contains(t, links.Prev, "page=1")
		assert.Contains(t, links.Next, "page=3")
		assert.Contains(t, links.Last, "page=3")

		// Filters survive page navigation.
		assert.Contains(t, links.Next, "status=todo")
	})

	t.Run("single page has no navigation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)

		links := NewPaginationLinks(req, 1, 10, 1)

		if !assert.NotNil(t, links) {
			return
		}
		assert.Empty(t, links.Prev)
		assert.Empty(t, links.Next)
		assert.Empty(t, links.Last)
	})

	t.Run("no results", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)

		assert.Nil(t, NewPaginationLinks(req, 1, 10, 0))
	})

	t.Run("honors forwarding headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://internal:8080/api/v1/tasks", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "api.taskforge.dev")

		links := NewPaginationLinks(req, 1, 10, 1)

		if assert.NotNil(t, links) {
			assert.Contains(t, links.Self, "https://api.taskforge.dev/api/v1/tasks")
		}
	})
}

func TestNewListResponse(t *testing.T) {
	res := pagination.NewResult([]int{1, 2, 3}, 3, pagination.New(1, 20))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)

	out := newListResponse(req, &res, strconv.Itoa)

	assert.Equal(t, []string{"1", "2", "3"}, out.Data)
	assert.Equal(t, int64(3), out.Total)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, 20, out.PerPage)
	assert.Equal(t, 1, out.TotalPages)
	assert.NotNil(t, out.Links)
}
