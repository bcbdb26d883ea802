//go:build ignore
// +build ignore

// smoke_authz.go - authorization smoke test against a running server
//
// Usage:
//
//	API_URL=http://localhost:8080 JWT_SECRET=... go run scripts/smoke_authz.go
//
// Drives the API through a bootstrap scenario and checks the authorization
// boundaries: owner inheritance down the hierarchy, member write denial,
// slug uniqueness, invitation single-use and team cascade recovery. Tokens
// are minted locally with the same secret the server holds, standing in for
// the identity provider.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/api/pkg/jwt"
)

var (
	apiURL    = envOr("API_URL", "http://localhost:8080")
	generator *jwt.Generator

	client = &http.Client{Timeout: 10 * time.Second}

	results []checkResult
)

type checkResult struct {
	name   string
	passed bool
	reason string
}

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required (must match the server)")
		os.Exit(1)
	}
	generator = jwt.NewGenerator(jwt.TokenConfig{
		Secret:              secret,
		Issuer:              envOr("JWT_ISSUER", "taskforge"),
		AccessTokenDuration: time.Hour,
	})

	fmt.Printf("Authorization smoke test against %s\n", apiURL)
	fmt.Println(strings.Repeat("=", 70))

	run()

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	passed, failed := 0, 0
	for _, r := range results {
		if r.passed {
			passed++
			continue
		}
		failed++
		fmt.Printf("FAIL %s: %s\n", r.name, r.reason)
	}
	fmt.Printf("Total: %d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func run() {
	suffix := uuid.NewString()[:8]
	slug := "acme-smoke-" + suffix

	alice := uuid.NewString()
	bob := uuid.NewString()
	carol := uuid.NewString()
	carolEmail := fmt.Sprintf("carol-%s@example.com", suffix)

	// Bootstrap: Alice creates the organization with a token that carries
	// no organization claim yet.
	aliceNoOrg := token(alice, "alice@example.com", "Alice", "")
	status, org := request("POST", "/api/v1/organizations", aliceNoOrg, map[string]any{
		"name": "Acme Smoke " + suffix,
		"slug": slug,
	})
	check("bootstrap organization", status == 201, "expected 201, got %d: %v", status, org)
	orgID, _ := org["id"].(string)

	status, mine := request("GET", "/api/v1/organizations", aliceNoOrg, nil)
	check("creator listed as owner", status == 200 && hasRole(mine, orgID, "owner"),
		"expected owner membership in listing, got %d: %v", status, mine)

	aliceTok := token(alice, "alice@example.com", "Alice", orgID)

	// Owner inheritance: team and project writes without explicit
	// team/project membership rows.
	status, teamBody := request("POST", "/api/v1/teams", aliceTok, map[string]any{"name": "Eng"})
	check("owner creates team", status == 201, "expected 201, got %d: %v", status, teamBody)
	teamID, _ := teamBody["id"].(string)

	status, teamMembers := request("GET", "/api/v1/teams/"+teamID+"/members", aliceTok, nil)
	check("no team membership auto-added", status == 200 && totalOf(teamMembers) == 0,
		"expected empty member list, got %d: %v", status, teamMembers)

	status, projBody := request("POST", "/api/v1/teams/"+teamID+"/projects", aliceTok, map[string]any{"name": "Launch"})
	check("owner creates project via inheritance", status == 201, "expected 201, got %d: %v", status, projBody)
	projectID, _ := projBody["id"].(string)

	status, taskBody := request("POST", "/api/v1/projects/"+projectID+"/tasks", aliceTok, map[string]any{"title": "Ship it"})
	check("owner creates task via inheritance", status == 201, "expected 201, got %d: %v", status, taskBody)

	// Bob joins as plain org member and team member, then tries to delete
	// the organization.
	bobTok := token(bob, "bob@example.com", "Bob", orgID)
	status, _ = request("GET", "/api/v1/organizations", bobTok, nil)
	check("bob first contact syncs user", status == 200, "expected 200, got %d", status)

	status, addBody := request("POST", "/api/v1/organizations/current/members", aliceTok, map[string]any{
		"user_id": bob, "role": "member",
	})
	check("alice adds bob as member", status == 201, "expected 201, got %d: %v", status, addBody)

	status, addBody = request("POST", "/api/v1/teams/"+teamID+"/members", aliceTok, map[string]any{
		"user_id": bob, "role": "member",
	})
	check("alice adds bob to team", status == 201, "expected 201, got %d: %v", status, addBody)

	status, errBody := request("DELETE", "/api/v1/organizations/current", bobTok, nil)
	check("bob cannot delete organization", status == 403 && codeOf(errBody) == "FORBIDDEN",
		"expected 403 FORBIDDEN, got %d: %v", status, errBody)

	status, errBody = request("PUT", "/api/v1/teams/"+teamID, bobTok, map[string]any{"name": "Eng2"})
	check("team member cannot rename team", status == 403,
		"expected 403, got %d: %v", status, errBody)

	// Slug uniqueness across tenants.
	dave := uuid.NewString()
	daveTok := token(dave, "dave@example.com", "Dave", "")
	status, errBody = request("POST", "/api/v1/organizations", daveTok, map[string]any{
		"name": "Acme Clone", "slug": slug,
	})
	check("duplicate slug rejected", status == 409 && codeOf(errBody) == "DUPLICATE_SLUG",
		"expected 409 DUPLICATE_SLUG, got %d: %v", status, errBody)

	// Invitation lifecycle: single use.
	status, invBody := request("POST", "/api/v1/invitations", aliceTok, map[string]any{
		"email": carolEmail, "org_role": "member",
	})
	check("invitation issued", status == 201, "expected 201, got %d: %v", status, invBody)
	invToken, _ := invBody["token"].(string)

	status, preview := request("GET", "/api/v1/invitations/"+invToken, "", nil)
	check("public preview works", status == 200 && preview["status"] == "pending",
		"expected pending preview, got %d: %v", status, preview)

	carolTok := token(carol, carolEmail, "Carol", "")
	status, acceptBody := request("POST", "/api/v1/invitations/"+invToken+"/accept", carolTok, nil)
	check("invitation accepted", status == 200, "expected 200, got %d: %v", status, acceptBody)

	status, errBody = request("POST", "/api/v1/invitations/"+invToken+"/accept", carolTok, nil)
	check("second accept rejected", status == 409 && codeOf(errBody) == "INVITATION_ACCEPTED",
		"expected 409 INVITATION_ACCEPTED, got %d: %v", status, errBody)

	status, orgMembers := request("GET", "/api/v1/organizations/current/members", aliceTok, nil)
	check("membership count after accept", status == 200 && totalOf(orgMembers) == 3,
		"expected 3 members (alice, bob, carol), got %d: %v", status, orgMembers)

	// Cascade: delete the team, confirm the project went with it, recover.
	status, cascBody := request("DELETE", "/api/v1/teams/"+teamID, aliceTok, nil)
	check("team soft-deleted with cascade", status == 200, "expected 200, got %d: %v", status, cascBody)

	status, errBody = request("GET", "/api/v1/projects/"+projectID, aliceTok, nil)
	check("cascaded project hidden", status == 404, "expected 404, got %d: %v", status, errBody)

	status, errBody = request("DELETE", "/api/v1/teams/"+teamID, aliceTok, nil)
	check("second delete conflicts", status == 404 || status == 409,
		"expected 404 or 409, got %d: %v", status, errBody)

	status, recBody := request("POST", "/api/v1/teams/"+teamID+"/recover", aliceTok, nil)
	check("team recovered", status == 200, "expected 200, got %d: %v", status, recBody)

	status, projBody = request("GET", "/api/v1/projects/"+projectID, aliceTok, nil)
	check("cascaded project restored", status == 200, "expected 200, got %d: %v", status, projBody)
}

// ---------------------------------------------------------------------------

func check(name string, ok bool, format string, args ...any) {
	r := checkResult{name: name, passed: ok}
	if ok {
		fmt.Printf("ok   %s\n", name)
	} else {
		r.reason = fmt.Sprintf(format, args...)
		fmt.Printf("FAIL %s: %s\n", name, r.reason)
	}
	results = append(results, r)
}

func token(userID, email, name, orgID string) string {
	tok, _, err := generator.GenerateAccessToken(userID, email, name, orgID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		os.Exit(1)
	}
	return tok
}

func request(method, path, bearer string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, map[string]any{"error": err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		return 0, map[string]any{"error": err.Error()}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, map[string]any{"error": err.Error()}
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	return resp.StatusCode, payload
}

func codeOf(body map[string]any) string {
	code, _ := body["code"].(string)
	return code
}

func totalOf(body map[string]any) int {
	if total, ok := body["total"].(float64); ok {
		return int(total)
	}
	return -1
}

func hasRole(body map[string]any, orgID, role string) bool {
	items, ok := body["items"].([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		entry, ok := it.(map[string]any)
		if !ok {
			continue
		}
		orgObj, _ := entry["organization"].(map[string]any)
		if orgObj != nil && orgObj["id"] == orgID && entry["role"] == role {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
