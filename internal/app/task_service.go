package app

import (
	"context"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
	"github.com/taskforge/api/pkg/validator"
)

// TaskService handles the task lifecycle inside a project scope.
type TaskService struct {
	tasks       task.Repository
	projects    project.Repository
	resolver    *accesscontrol.Resolver
	validate    *validator.Validator
	broadcaster ActivityBroadcaster
	logger      *logger.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(
	tasks task.Repository,
	projects project.Repository,
	log *logger.Logger,
	opts ...TaskServiceOption,
) *TaskService {
	s := &TaskService{
		tasks:       tasks,
		projects:    projects,
		resolver:    accesscontrol.NewResolver(),
		validate:    validator.New(),
		broadcaster: NoOpActivityBroadcaster{},
		logger:      log.With("service", "task"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TaskServiceOption is a functional option for TaskService.
type TaskServiceOption func(*TaskService)

// WithTaskBroadcaster sets the activity broadcaster.
func WithTaskBroadcaster(b ActivityBroadcaster) TaskServiceOption {
	return func(s *TaskService) {
		s.broadcaster = b
	}
}

// CreateTaskInput carries a task creation request. The owning project comes
// from the request scope.
type CreateTaskInput struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
}

// Create adds an open task under the project in scope. Requires project
// Contributor, lead of the owning team, or an inheriting org role.
func (s *TaskService) Create(ctx context.Context, tc accesscontrol.TenantContext, input CreateTaskInput) (*task.Task, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleContributor)); err != nil {
		return nil, err
	}

	// No new tasks under a soft-deleted project.
	p, err := s.projects.GetByID(ctx, tc.OrganizationID, tc.ProjectID, false)
	if err != nil {
		return nil, err
	}

	t, err := task.NewTask(tc.ProjectID, tc.OrganizationID, input.Title, tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionCreate, audit.ResourceTask, t.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("project_id", tc.ProjectID.String()).
		WithContext("title", t.Title())

	if err := s.tasks.Create(ctx, t, entry); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("task created",
		"organization_id", tc.OrganizationID.String(),
		"project_id", tc.ProjectID.String(),
		"task_id", t.ID().String(),
	)
	teamID, projectID := p.TeamID(), tc.ProjectID
	publish(s.broadcaster, entry, &teamID, &projectID)
	return t, nil
}

// Get returns one task from the project in scope. Requires project Viewer,
// lead of the owning team, or an inheriting org role. A task that lives in a
// different project reads as not found.
func (s *TaskService) Get(ctx context.Context, tc accesscontrol.TenantContext, taskID shared.ID, includeDeleted bool) (*task.Task, error) {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleViewer)); err != nil {
		return nil, err
	}

	t, err := s.tasks.GetByID(ctx, tc.OrganizationID, taskID, includeDeleted)
	if err != nil {
		return nil, err
	}
	if !t.ProjectID().Equals(tc.ProjectID) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}
	return t, nil
}

// ListTasksInput filters and paginates the project's tasks.
type ListTasksInput struct {
	Status         string `json:"status" validate:"omitempty,task_status"`
	IncludeDeleted bool   `json:"include_deleted"`
	Page           int    `json:"page"`
	PerPage        int    `json:"per_page"`
}

// List returns the tasks of the project in scope, newest first.
func (s *TaskService) List(ctx context.Context, tc accesscontrol.TenantContext, input ListTasksInput) (pagination.Result[*task.Task], error) {
	var empty pagination.Result[*task.Task]
	if err := s.validate.Validate(input); err != nil {
		return empty, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleViewer)); err != nil {
		return empty, err
	}

	projectID := tc.ProjectID
	filter := task.Filter{
		ProjectID:      &projectID,
		IncludeDeleted: input.IncludeDeleted,
	}
	if input.Status != "" {
		status := task.Status(input.Status)
		filter.Status = &status
	}

	result, err := s.tasks.List(ctx, tc.OrganizationID, filter, pagination.New(input.Page, input.PerPage))
	if err != nil {
		return empty, fmt.Errorf("failed to list tasks: %w", err)
	}
	return result, nil
}

// UpdateTaskInput carries partial updates; nil fields stay as they are.
type UpdateTaskInput struct {
	Title  *string `json:"title" validate:"omitempty,min=1,max=200"`
	Status *string `json:"status" validate:"omitempty,task_status"`
}

// Update retitles a task or moves it between open and done. Requires project
// Contributor or inheritance.
func (s *TaskService) Update(ctx context.Context, tc accesscontrol.TenantContext, taskID shared.ID, input UpdateTaskInput) (*task.Task, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleContributor)); err != nil {
		return nil, err
	}

	t, err := s.tasks.GetByID(ctx, tc.OrganizationID, taskID, false)
	if err != nil {
		return nil, err
	}
	if !t.ProjectID().Equals(tc.ProjectID) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionUpdate, audit.ResourceTask, t.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).WithContext("project_id", tc.ProjectID.String())

	changed := false
	if input.Title != nil && *input.Title != t.Title() {
		if err := t.UpdateTitle(*input.Title); err != nil {
			return nil, err
		}
		entry.WithContext("title", t.Title())
		changed = true
	}
	if input.Status != nil && task.Status(*input.Status) != t.Status() {
		if err := t.UpdateStatus(task.Status(*input.Status)); err != nil {
			return nil, err
		}
		entry.WithContext("status", t.Status().String())
		changed = true
	}
	if !changed {
		return t, nil
	}

	if err := s.tasks.Update(ctx, t, entry); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return t, nil
}

// SoftDelete stamps one task. Requires project Manager, lead of the owning
// team, or an inheriting org role.
func (s *TaskService) SoftDelete(ctx context.Context, tc accesscontrol.TenantContext, taskID shared.ID) error {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return err
	}

	t, err := s.tasks.GetByID(ctx, tc.OrganizationID, taskID, true)
	if err != nil {
		return err
	}
	if !t.ProjectID().Equals(tc.ProjectID) {
		return fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}

	deletedAt := time.Now().UTC()
	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionSoftDelete, audit.ResourceTask, taskID.String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).
		WithContext("project_id", tc.ProjectID.String()).
		WithContext("deleted_at", deletedAt.Format(time.RFC3339Nano))

	if err := s.tasks.SoftDelete(ctx, tc.OrganizationID, taskID, deletedAt, entry); err != nil {
		return err
	}

	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return nil
}

// Recover clears one task's stamp. Requires project Manager or inheritance.
// While the owning project is itself soft-deleted the task reads as not
// found; recover the project first.
func (s *TaskService) Recover(ctx context.Context, tc accesscontrol.TenantContext, taskID shared.ID) (*task.Task, error) {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return nil, err
	}

	if _, err := s.projects.GetByID(ctx, tc.OrganizationID, tc.ProjectID, false); err != nil {
		return nil, err
	}

	t, err := s.tasks.GetByID(ctx, tc.OrganizationID, taskID, true)
	if err != nil {
		return nil, err
	}
	if !t.ProjectID().Equals(tc.ProjectID) {
		return nil, fmt.Errorf("%w: task %s", shared.ErrNotFound, taskID)
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRecover, audit.ResourceTask, taskID.String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).WithContext("project_id", tc.ProjectID.String())

	if err := s.tasks.Recover(ctx, tc.OrganizationID, taskID, entry); err != nil {
		return nil, err
	}
	_ = t.Recover()

	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return t, nil
}
