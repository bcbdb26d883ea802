package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
)

// ProjectHandler serves project CRUD and project membership endpoints.
type ProjectHandler struct {
	service *app.ProjectService
	logger  *logger.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(service *app.ProjectService, log *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		service: service,
		logger:  log.With("handler", "project"),
	}
}

// ============================================================================
// Response types
// ============================================================================

// ProjectResponse is the wire representation of a project.
type ProjectResponse struct {
	ID             string  `json:"id"`
	TeamID         string  `json:"team_id"`
	OrganizationID string  `json:"organization_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	DeletedAt      *string `json:"deleted_at,omitempty"`
}

func toProjectResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID().String(),
		TeamID:         p.TeamID().String(),
		OrganizationID: p.OrganizationID().String(),
		Name:           p.Name(),
		Description:    p.Description(),
		CreatedBy:      p.CreatedBy().String(),
		CreatedAt:      formatTime(p.CreatedAt()),
		UpdatedAt:      formatTime(p.UpdatedAt()),
		DeletedAt:      formatTimePtr(p.DeletedAt()),
	}
}

// ProjectMemberResponse is the wire representation of a project membership row.
type ProjectMemberResponse struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	OrganizationID string  `json:"organization_id"`
	UserID         string  `json:"user_id"`
	Role           string  `json:"role"`
	AddedBy        *string `json:"added_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toProjectMemberResponse(m *project.Member) ProjectMemberResponse {
	return ProjectMemberResponse{
		ID:             m.ID().String(),
		ProjectID:      m.ProjectID().String(),
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

// Create handles POST /api/v1/teams/{teamID}/projects. Projects always live
// under a team, so creation is addressed through the owning team.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.CreateProjectInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	p, err := h.service.Create(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	respondJSON(w, http.StatusCreated, toProjectResponse(p))
}

// List handles GET /api/v1/projects. Supports ?team_id= to narrow to one
// team and ?include_deleted=true to include soft-deleted projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	filter := project.Filter{
		IncludeDeleted: parseQueryBool(infrahttp.QueryParam(r, "include_deleted")),
	}
	if raw := infrahttp.QueryParam(r, "team_id"); raw != "" {
		teamID, err := shared.ParseID(raw)
		if err != nil {
			apierror.BadRequest("Invalid team_id filter").WriteJSON(w)
			return
		}
		filter.TeamID = &teamID
	}

	projects, err := h.service.List(r.Context(), tc, filter)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	items := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, toProjectResponse(p))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// Get handles GET /api/v1/projects/{projectID}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	includeDeleted := parseQueryBool(infrahttp.QueryParam(r, "include_deleted"))

	p, err := h.service.Get(r.Context(), tc, tc.ProjectID, includeDeleted)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

// Update handles PUT /api/v1/projects/{projectID}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.UpdateProjectInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	p, err := h.service.Update(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	respondJSON(w, http.StatusOK, toProjectResponse(p))
}

// SoftDelete handles DELETE /api/v1/projects/{projectID}. The response
// reports how many tasks were cascaded.
func (h *ProjectHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	tasks, err := h.service.SoftDelete(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cascade": map[string]int64{"tasks": tasks},
	})
}

// Recover handles POST /api/v1/projects/{projectID}/recover. Tasks deleted
// by the project cascade come back with it; independently deleted tasks do
// not.
func (h *ProjectHandler) Recover(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	tasks, err := h.service.Recover(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	p, err := h.service.Get(r.Context(), tc, tc.ProjectID, false)
	if err != nil {
		handleServiceError(w, h.logger, "project", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"project": toProjectResponse(p),
		"cascade": map[string]int64{"tasks": tasks},
	})
}

// ListMembers handles GET /api/v1/projects/{projectID}/members.
func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
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

// AddMember handles POST /api/v1/projects/{projectID}/members.
func (h *ProjectHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.AddProjectMemberInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.AddMember(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusCreated, toProjectMemberResponse(member))
}

// RemoveMember handles DELETE /api/v1/projects/{projectID}/members/{userID}.
func (h *ProjectHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
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

// UpdateMemberRole handles PUT /api/v1/projects/{projectID}/members/{userID}/role.
func (h *ProjectHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
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

	var input app.UpdateProjectMemberRoleInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.UpdateMemberRole(r.Context(), tc, userID, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusOK, toProjectMemberResponse(member))
}
