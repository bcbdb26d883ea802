package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/logger"
)

// AuditHandler serves the audit log listing endpoint.
type AuditHandler struct {
	service *app.AuditService
	logger  *logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(service *app.AuditService, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  log.With("handler", "audit"),
	}
}

// AuditEntryResponse is the wire representation of an audit entry. ActorID
// is omitted for system-initiated actions such as retention pruning.
type AuditEntryResponse struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ActorID        *string        `json:"actor_id,omitempty"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Context        map[string]any `json:"context,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

func toAuditEntryResponse(e *audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:             e.ID().String(),
		OrganizationID: e.OrganizationID().String(),
		ActorID:        idPtr(e.ActorID()),
		Action:         string(e.Action()),
		ResourceType:   string(e.ResourceType()),
		ResourceID:     e.ResourceID(),
		Context:        e.Context(),
		CreatedAt:      formatTime(e.CreatedAt()),
	}
}

// List handles GET /api/v1/audit-logs. Filters: ?actor_id=, ?actions= and
// ?resource_types= (comma-separated), ?resource_id=, ?since= and ?until=
// (RFC3339), plus page/per_page pagination.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	input := app.ListAuditInput{
		ActorID:       infrahttp.QueryParam(r, "actor_id"),
		Actions:       parseQueryArray(infrahttp.QueryParam(r, "actions")),
		ResourceTypes: parseQueryArray(infrahttp.QueryParam(r, "resource_types")),
		ResourceID:    infrahttp.QueryParam(r, "resource_id"),
		Since:         parseQueryTime(infrahttp.QueryParam(r, "since")),
		Until:         parseQueryTime(infrahttp.QueryParam(r, "until")),
		Page:          parseQueryInt(infrahttp.QueryParam(r, "page"), 1),
		PerPage:       parseQueryInt(infrahttp.QueryParam(r, "per_page"), 20),
	}

	result, err := h.service.List(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "audit log", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(r, &result, toAuditEntryResponse))
}
