package handler

import (
	"net/http"

	"github.com/taskforge/api/internal/app"
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/logger"
)

// TaskHandler serves task endpoints. All task routes are nested under the
// owning project, which the scope middleware has already resolved.
type TaskHandler struct {
	service *app.TaskService
	logger  *logger.Logger
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(service *app.TaskService, log *logger.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  log.With("handler", "task"),
	}
}

// TaskResponse is the wire representation of a task.
type TaskResponse struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	OrganizationID string  `json:"organization_id"`
	Title          string  `json:"title"`
	Status         string  `json:"status"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	DeletedAt      *string `json:"deleted_at,omitempty"`
}

func toTaskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID().String(),
		ProjectID:      t.ProjectID().String(),
		OrganizationID: t.OrganizationID().String(),
		Title:          t.Title(),
		Status:         t.Status().String(),
		CreatedBy:      t.CreatedBy().String(),
		CreatedAt:      formatTime(t.CreatedAt()),
		UpdatedAt:      formatTime(t.UpdatedAt()),
		DeletedAt:      formatTimePtr(t.DeletedAt()),
	}
}

// Create handles POST /api/v1/projects/{projectID}/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	var input app.CreateTaskInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	t, err := h.service.Create(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	respondJSON(w, http.StatusCreated, toTaskResponse(t))
}

// List handles GET /api/v1/projects/{projectID}/tasks. Supports ?status=,
// ?include_deleted=true and page/per_page pagination.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	input := app.ListTasksInput{
		Status:         infrahttp.QueryParam(r, "status"),
		IncludeDeleted: parseQueryBool(infrahttp.QueryParam(r, "include_deleted")),
		Page:           parseQueryInt(infrahttp.QueryParam(r, "page"), 1),
		PerPage:        parseQueryInt(infrahttp.QueryParam(r, "per_page"), 20),
	}

	result, err := h.service.List(r.Context(), tc, input)
	if err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	respondJSON(w, http.StatusOK, newListResponse(r, &result, toTaskResponse))
}

// Get handles GET /api/v1/projects/{projectID}/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	taskID, apiErr := pathID(r, "taskID", "task")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	includeDeleted := parseQueryBool(infrahttp.QueryParam(r, "include_deleted"))

	t, err := h.service.Get(r.Context(), tc, taskID, includeDeleted)
	if err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// Update handles PUT /api/v1/projects/{projectID}/tasks/{taskID}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	taskID, apiErr := pathID(r, "taskID", "task")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	var input app.UpdateTaskInput
	if apiErr := decodeJSON(r, &input); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	t, err := h.service.Update(r.Context(), tc, taskID, input)
	if err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	respondJSON(w, http.StatusOK, toTaskResponse(t))
}

// SoftDelete handles DELETE /api/v1/projects/{projectID}/tasks/{taskID}.
func (h *TaskHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	taskID, apiErr := pathID(r, "taskID", "task")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	if err := h.service.SoftDelete(r.Context(), tc, taskID); err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recover handles POST /api/v1/projects/{projectID}/tasks/{taskID}/recover.
func (h *TaskHandler) Recover(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.GetTenantContext(r.Context())
	if !ok {
		apierror.MissingTenantContext().WriteJSON(w)
		return
	}

	taskID, apiErr := pathID(r, "taskID", "task")
	if apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	t, err := h.service.Recover(r.Context(), tc, taskID)
	if err != nil {
		handleServiceError(w, h.logger, "task", err)
		return
	}

	respondJSON(w, http.StatusOK, toTaskResponse(t))
}
