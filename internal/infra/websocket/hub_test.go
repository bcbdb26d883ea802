package websocket

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel  string
		wantType ChannelType
		wantID   string
	}{
		{"organization:org-1", ChannelTypeOrganization, "org-1"},
		{"project:abc:def", ChannelTypeProject, "abc:def"},
		{"team:", ChannelTypeTeam, ""},
		{"noseparator", "", "noseparator"},
	}
	for _, tt := range tests {
		gotType, gotID := ParseChannel(tt.channel)
		assert.Equal(t, tt.wantType, gotType, tt.channel)
		assert.Equal(t, tt.wantID, gotID, tt.channel)
	}
}

func TestMakeChannel(t *testing.T) {
	assert.Equal(t, "project:p-1", MakeChannel(ChannelTypeProject, "p-1"))
}

func TestDefaultAuthorize(t *testing.T) {
	client := &Client{OrganizationID: "org-1"}

	assert.True(t, defaultAuthorize(client, "organization:org-1"))
	assert.False(t, defaultAuthorize(client, "organization:org-2"))
	assert.False(t, defaultAuthorize(client, "organization:"))

	// Team and project rooms need the service-backed policy.
	assert.False(t, defaultAuthorize(client, "team:t-1"))
	assert.False(t, defaultAuthorize(client, "project:p-1"))
	assert.False(t, defaultAuthorize(client, "bogus:x"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.taskforge.io"})

	req := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/ws/activity", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("")))
	assert.True(t, check(req("https://app.taskforge.io")))
	assert.True(t, check(req("HTTPS://APP.TASKFORGE.IO")))
	assert.False(t, check(req("https://evil.example")))

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(req("https://anywhere.example")))
}
