package app

import (
	"context"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
	"github.com/taskforge/api/pkg/validator"
)

// AuditService exposes the audit trail to org administrators. Entries are
// written by the mutating repositories; this service only reads.
type AuditService struct {
	entries  audit.Repository
	resolver *accesscontrol.Resolver
	validate *validator.Validator
	logger   *logger.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(entries audit.Repository, log *logger.Logger) *AuditService {
	return &AuditService{
		entries:  entries,
		resolver: accesscontrol.NewResolver(),
		validate: validator.New(),
		logger:   log.With("service", "audit"),
	}
}

// ListAuditInput filters and paginates an organization's audit trail.
type ListAuditInput struct {
	ActorID       string     `json:"actor_id" validate:"omitempty,uuid"`
	Actions       []string   `json:"actions"`
	ResourceTypes []string   `json:"resource_types"`
	ResourceID    string     `json:"resource_id"`
	Since         *time.Time `json:"since"`
	Until         *time.Time `json:"until"`
	Page          int        `json:"page"`
	PerPage       int        `json:"per_page"`
}

// List returns the organization's audit entries, newest first. Requires org
// Admin.
func (s *AuditService) List(ctx context.Context, tc accesscontrol.TenantContext, input ListAuditInput) (pagination.Result[*audit.Entry], error) {
	var empty pagination.Result[*audit.Entry]
	if err := s.validate.Validate(input); err != nil {
		return empty, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return empty, err
	}

	filter := audit.Filter{
		Since: input.Since,
		Until: input.Until,
	}
	if input.ActorID != "" {
		actorID, err := shared.ParseID(input.ActorID)
		if err != nil {
			return empty, err
		}
		filter.ActorID = &actorID
	}
	for _, a := range input.Actions {
		action := audit.Action(a)
		if !action.IsValid() {
			return empty, fmt.Errorf("%w: invalid audit action %q", shared.ErrValidation, a)
		}
		filter.Actions = append(filter.Actions, action)
	}
	for _, r := range input.ResourceTypes {
		resourceType := audit.ResourceType(r)
		if !resourceType.IsValid() {
			return empty, fmt.Errorf("%w: invalid resource type %q", shared.ErrValidation, r)
		}
		filter.ResourceTypes = append(filter.ResourceTypes, resourceType)
	}
	if input.ResourceID != "" {
		resourceID := input.ResourceID
		filter.ResourceID = &resourceID
	}
	if input.Since != nil && input.Until != nil && input.Until.Before(*input.Since) {
		return empty, fmt.Errorf("%w: until precedes since", shared.ErrValidation)
	}

	result, err := s.entries.List(ctx, tc.OrganizationID, filter, pagination.New(input.Page, input.PerPage))
	if err != nil {
		return empty, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return result, nil
}
