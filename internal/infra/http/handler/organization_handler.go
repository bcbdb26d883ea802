package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/logger"
)

// OrganizationHandler serves organization lifecycle, membership and
// websocket ticket endpoints.
type OrganizationHandler struct {
	service *app.OrganizationService
	tickets *redis.SocketTicketStore
	logger  *logger.Logger
}

// NewOrganizationHandler creates a new organization handler.
func NewOrganizationHandler(service *app.OrganizationService, tickets *redis.SocketTicketStore, log *logger.Logger) *OrganizationHandler {
	return &OrganizationHandler{
		service: service,
		tickets: tickets,
		logger:  log.With("handler", "organization"),
	}
}

// ============================================================================
// Response types
// ============================================================================

// OrganizationResponse is the wire representation of an organization.
type OrganizationResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description string  `json:"description,omitempty"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	DeletedAt   *string `json:"deleted_at,omitempty"`
}

func toOrganizationResponse(o *organization.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:          o.ID().String(),
		Name:        o.Name(),
		Slug:        o.Slug(),
		Description: o.Description(),
		CreatedBy:   o.CreatedBy().String(),
		CreatedAt:   formatTime(o.CreatedAt()),
		UpdatedAt:   formatTime(o.UpdatedAt()),
		DeletedAt:   formatTimePtr(o.DeletedAt()),
	}
}

// OrganizationWithRoleResponse pairs an organization with the caller's role
// in it, for the "my organizations" listing.
type OrganizationWithRoleResponse struct {
	Organization OrganizationResponse `json:"organization"`
	Role         string               `json:"role"`
	JoinedAt     string               `json:"joined_at"`
}

// OrganizationMemberResponse is the wire representation of a membership row.
type OrganizationMemberResponse struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	UserID         string  `json:"user_id"`
	Role           string  `json:"role"`
	AddedBy        *string `json:"added_by,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func toOrganizationMemberResponse(m *organization.Member) OrganizationMemberResponse {
	return OrganizationMemberResponse{
		ID:             m.ID().String(),
		OrganizationID: m.OrganizationID().String(),
		UserID:         m.UserID().String(),
		Role:           m.Role().String(),
		AddedBy:        idPtr(m.AddedBy()),
		CreatedAt:      formatTime(m.CreatedAt()),
	}
}

// SocketTicketResponse carries a single-use websocket ticket.
type SocketTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// ============================================================================
// Handlers
// ============================================================================

// Create handles POST /api/v1/organizations. The caller becomes the
// organization's first owner.
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetAuthUserID(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	var input app.CreateOrganizationInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	org, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrganizationResponse(org))
}

// ListMine handles GET /api/v1/organizations. It lists every organization
// the caller belongs to, regardless of the active tenant.
func (h *OrganizationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetAuthUserID(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	memberships, err := h.service.ListMine(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	items := make([]OrganizationWithRoleResponse, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, OrganizationWithRoleResponse{
			Organization: toOrganizationResponse(m.Organization),
			Role:         m.Role.String(),
			JoinedAt:     formatTime(m.JoinedAt),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

// GetBySlug handles GET /api/v1/organizations/by-slug/{slug}. It resolves a
// slug deep link to an organization the caller belongs to; any other slug is
// a 404.
func (h *OrganizationHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetAuthUserID(r.Context())
	if !ok {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	slug := infrahttp.PathParam(r, "slug")
	if slug == "" {
		apierror.NotFound("organization").WriteJSON(w)
		return
	}

	membership, err := h.service.GetBySlug(r.Context(), userID, slug)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusOK, OrganizationWithRoleResponse{
		Organization: toOrganizationResponse(membership.Organization),
		Role:         membership.Role.String(),
		JoinedAt:     formatTime(membership.JoinedAt),
	})
}

// GetCurrent handles GET /api/v1/organizations/current. Soft-deleted
// organizations are returned too, so members can see the deleted state and
// owners can reach recover.
func (h *OrganizationHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	org, err := h.service.GetCurrent(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Update handles PUT /api/v1/organizations/current.
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.UpdateOrganizationInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	org, err := h.service.Update(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// SoftDelete handles DELETE /api/v1/organizations/current.
func (h *OrganizationHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	if err := h.service.SoftDelete(r.Context(), tc); err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recover handles POST /api/v1/organizations/current/recover. It restores a
// soft-deleted organization and returns the live row.
func (h *OrganizationHandler) Recover(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	if err := h.service.Recover(r.Context(), tc); err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	org, err := h.service.GetCurrent(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Overview handles GET /api/v1/organizations/current/overview.
func (h *OrganizationHandler) Overview(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	overview, err := h.service.Overview(r.Context(), tc)
	if err != nil {
		handleServiceError(w, h.logger, "organization", err)
		return
	}

	respondJSON(w, http.StatusOK, overview)
}

// ListMembers handles GET /api/v1/organizations/current/members.
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
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

// AddMember handles POST /api/v1/organizations/current/members.
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.AddOrganizationMemberInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.AddMember(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrganizationMemberResponse(member))
}

// RemoveMember handles DELETE /api/v1/organizations/current/members/{userID}.
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
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

// UpdateMemberRole handles PUT /api/v1/organizations/current/members/{userID}/role.
func (h *OrganizationHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
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

	var input app.UpdateOrganizationMemberRoleInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	member, err := h.service.UpdateMemberRole(r.Context(), tc, userID, input)
	if err != nil {
		handleServiceError(w, h.logger, "member", err)
		return
	}

	respondJSON(w, http.StatusOK, toOrganizationMemberResponse(member))
}

// IssueSocketTicket handles POST /api/v1/organizations/current/ws-ticket.
// The returned ticket is single-use and expires quickly; the client presents
// it as the ?ticket= query parameter when opening the activity websocket.
func (h *OrganizationHandler) IssueSocketTicket(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	ticket, err := h.tickets.Issue(r.Context(), tc.UserID, tc.OrganizationID)
	if err != nil {
		h.logger.Error("failed to issue socket ticket", "error", err)
		apierror.InternalError(err).WriteJSON(w)
		return
	}

	respondJSON(w, http.StatusOK, SocketTicketResponse{
		Ticket:    ticket,
		ExpiresIn: int(h.tickets.TTL().Seconds()),
	})
}
