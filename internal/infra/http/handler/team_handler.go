package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/logger"
)

// TeamHandler serves team CRUD and team membership endpoints.
type TeamHandler struct {
	service *app.TeamService
	logger  *logger.Logger
}

// NewTeamHandler creates a new team handler.
func NewTeamHandler(service *app.TeamService, log *logger.Logger) *TeamHandler {
	return &TeamHandler{
		service: service,
		logger:  log.With("handler", "team"),
	}
}

// ============================================================================
// Response types
// ============================================================================

// TeamResponse is the wire representation of a team.
type TeamResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	DeletedAt      *string `json:"deleted_at,omitempty"`
}

func toTeamResponse(t *team.Team) TeamResponse {
	return TeamResponse{
		ID:             t.ID().String(),
		OrganizationID: t.OrganizationID().String(),
		Name:           t.Name(),
		Description:    t.Description(),
		CreatedBy:      t.CreatedBy().String(),
		CreatedAt:      formatTime(t.CreatedAt()),
		UpdatedAt:      formatTime(t.UpdatedAt()),
		DeletedAt:      formatTimePtr(t.DeletedAt()),
	}
}

// TeamMemberResponse is the wire representation of a team membership row.
type TeamMemberResponse struct {
	ID             string  `json:"id"`
	TeamID         string  `json:"team_id"`
	OrganizationID string  `json:"organization_id"`
	UserID         string  `json:"user_id"`
	Role           string  `json:"role"`
	AddedBy        *string `json:"added_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toTeamMemberResponse(m *team.Member) TeamMemberResponse {
	return TeamMemberResponse{
		ID:             m.ID().String(),
		TeamID:         m.TeamID().String(),
		OrganizationID: m.OrganizationID().String(),
		UserID:         m.UserID().String(),
		Role:           m.Role().String(),
		AddedBy:        idPtr(m.AddedBy()),
		CreatedAt:      formatTime(m.CreatedAt()),
	}
}

// ============================================================================
// Handlers
// ============================================================================

// Create handles POST /api/v1/teams.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.CreateTeamInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	t, err := h.service.Create(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	respondJSON(w, http.StatusCreated, toTeamResponse(t))
}

// List handles GET /api/v1/teams. Soft-deleted teams are included only when
// ?include_deleted=true.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	includeDeleted := parseQueryBool(infrahttp.QueryParam(r, "include_deleted"))

	teams, err := h.service.List(r.Context(), tc, includeDeleted)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	items := make([]TeamResponse, 0, len(teams))
	for _, t := range teams {
		items = append(items, toTeamResponse(t))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Get handles GET /api/v1/teams/{teamID}.
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	includeDeleted := parseQueryBool(infrahttp.QueryParam(r, "include_deleted"))

	t, err := h.service.Get(r.Context(), tc, tc.TeamID, includeDeleted)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	respondJSON(w, http.StatusOK, toTeamResponse(t))
}

// Update handles PUT /api/v1/teams/{teamID}.
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.UpdateTeamInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	t, err := h.service.Update(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	respondJSON(w, http.StatusOK, toTeamResponse(t))
}

// SoftDelete handles DELETE /api/v1/teams/{teamID}. The response reports how
// many projects and tasks were cascaded.
func (h *TeamHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	result, err := h.service.SoftDelete(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cascade": result,
	})
}

// Recover handles POST /api/v1/teams/{teamID}/recover. Only entities deleted
// by the team cascade come back with it; the response reports the counts.
func (h *TeamHandler) Recover(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	result, err := h.service.Recover(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	t, err := h.service.Get(r.Context(), tc, tc.TeamID, false)
	if err != nil {
		handleServiceError(w, h.logger, "team", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"team":    toTeamResponse(t),
		"cascade": result,
	})
}

// ListMembers handles GET /api/v1/teams/{teamID}/members.
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	members, err := h.service.ListMembers(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": members,
		"total": len(members),
	})
}

// AddMember handles POST /api/v1/teams/{teamID}/members.
func (h *TeamHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.AddTeamMemberInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.AddMember(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusCreated, toTeamMemberResponse(member))
}

// RemoveMember handles DELETE /api/v1/teams/{teamID}/members/{userID}.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	userID, apiErr := pathID(r, "userID", "member")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	if err := h.service.RemoveMember(r.Context(), tc, userID); err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateMemberRole handles PUT /api/v1/teams/{teamID}/members/{userID}/role.
func (h *TeamHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	userID, apiErr := pathID(r, "userID", "member")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	var input app.UpdateTeamMemberRoleInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.UpdateMemberRole(r.Context(), tc, userID, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusOK, toTeamMemberResponse(member))
}
