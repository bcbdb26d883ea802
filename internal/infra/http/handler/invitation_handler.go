package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/logger"
)

// InvitationHandler serves invitation issue, preview, accept, revoke and
// list endpoints.
type InvitationHandler struct {
	service *app.InvitationService
	logger  *logger.Logger
}

// NewInvitationHandler creates a new invitation handler.
func NewInvitationHandler(service *app.InvitationService, log *logger.Logger) *InvitationHandler {
	return &InvitationHandler{
		service: service,
		logger:  log.With("handler", "invitation"),
	}
}

// ============================================================================
// Response types
// ============================================================================

// InvitationResponse is the wire representation of an invitation. The
// acceptance token is only present in the create response; listings never
// echo it back.
type InvitationResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	Email          string  `json:"email"`
	OrgRole        string  `json:"org_role"`
	TeamID         *string `json:"team_id,omitempty"`
	TeamRole       string  `json:"team_role,omitempty"`
	ProjectID      *string `json:"project_id,omitempty"`
	ProjectRole    string  `json:"project_role,omitempty"`
	Status         string  `json:"status"`
	Token          string  `json:"token,omitempty"`
	InvitedBy      string  `json:"invited_by"`
	ExpiresAt      string  `json:"expires_at"`
	AcceptedAt     *string `json:"accepted_at,omitempty"`
	AcceptedBy     *string `json:"accepted_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func invitationStatus(inv *invitation.Invitation) string {
	switch {
	case inv.IsAccepted():
		return string(invitation.StatusAccepted)
	case inv.IsExpired():
		return string(invitation.StatusExpired)
	default:
		return string(invitation.StatusPending)
	}
}

func toInvitationResponse(inv *invitation.Invitation) InvitationResponse {
	resp := InvitationResponse{
		ID:             inv.ID().String(),
		OrganizationID: inv.OrganizationID().String(),
		Email:          inv.Email(),
		OrgRole:        inv.OrgRole().String(),
		TeamID:         idPtr(inv.TeamID()),
		ProjectID:      idPtr(inv.ProjectID()),
		Status:         invitationStatus(inv),
		InvitedBy:      inv.InvitedBy().String(),
		ExpiresAt:      formatTime(inv.ExpiresAt()),
		AcceptedAt:     formatTimePtr(inv.AcceptedAt()),
		AcceptedBy:     idPtr(inv.AcceptedBy()),
		CreatedAt:      formatTime(inv.CreatedAt()),
	}
	if inv.TeamID() != nil {
		resp.TeamRole = inv.TeamRole().String()
	}
	if inv.ProjectID() != nil {
		resp.ProjectRole = inv.ProjectRole().String()
	}
	return resp
}

// InvitationPreviewResponse is what an invitee sees before accepting. It
// names the organization and any granted team or project but exposes no
// internal identifiers.
type InvitationPreviewResponse struct {
	OrganizationName string `json:"organization_name"`
	TeamName         string `json:"team_name,omitempty"`
	ProjectName      string `json:"project_name,omitempty"`
	InviterName      string `json:"inviter_name"`
	Email            string `json:"email"`
	OrgRole          string `json:"org_role"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expires_at"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create handles POST /api/v1/invitations. The response carries the
// acceptance token exactly once; the caller is responsible for delivering
// the invite link if email delivery is disabled.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.CreateInvitationInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	inv, err := h.service.Create(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "invitation", err)
		return
	}

	resp := toInvitationResponse(inv)
	resp.Token = inv.Token()
	respondJSON(w, http.StatusCreated, resp)
}

// Preview handles GET /api/v1/invitations/{token}. It is unauthenticated so
// invitees can inspect an invite before signing in; a distributed rate limit
// in front of it slows token enumeration.
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := infrahttp.PathParam(r, "token")
	if token == "" {
		apierror.NotFound("invitation").WriteJSON(w)
		return
	}

	preview, err := h.service.Preview(r.Context(), token)
	if err != nil {
		handleServiceError(w, h.logger, "invitation", err)
		return
	}

	respondJSON(w, http.StatusOK, InvitationPreviewResponse{
		OrganizationName: preview.OrganizationName,
		TeamName:         preview.TeamName,
		ProjectName:      preview.ProjectName,
		InviterName:      preview.InviterName,
		Email:            preview.Invitation.Email(),
		OrgRole:          preview.Invitation.OrgRole().String(),
		Status:           invitationStatus(preview.Invitation),
		ExpiresAt:        formatTime(preview.Invitation.ExpiresAt()),
	})
}

// Accept handles POST /api/v1/invitations/{token}/accept. It needs a valid
// bearer token but no organization scope; the memberships it creates are
// what make the caller a member.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetAuthUserID(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	token := infrahttp.PathParam(r, "token")
	if token == "" {
		apierror.NotFound("invitation").WriteJSON(w)
		return
	}

	inv, err := h.service.Accept(r.Context(), token, userID, claims.Email)
	if err != nil {
		handleServiceError(w, h.logger, "invitation", err)
		return
	}

	respondJSON(w, http.StatusOK, toInvitationResponse(inv))
}

// Revoke handles DELETE /api/v1/invitations/{invitationID}.
func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	invitationID, apiErr := pathID(r, "invitationID", "invitation")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	if err := h.service.Revoke(r.Context(), tc, invitationID); err != nil {
		handleServiceError(w, h.logger, "invitation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/invitations. Supports ?status=pending|accepted|
// expired, ?email= and page/per_page pagination.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	input := app.ListInvitationsInput{
		Status:  infrahttp.QueryParam(r, "status"),
		Email:   infrahttp.QueryParam(r, "email"),
		Page:    parseQueryInt(infrahttp.QueryParam(r, "page"), 1),
		PerPage: parseQueryInt(infrahttp.QueryParam(r, "per_page"), 20),
	}

	result, err := h.service.List(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "invitation", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(r, &result, toInvitationResponse))
}
