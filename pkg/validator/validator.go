// Package validator provides struct validation with validators for the role
// and status vocabularies the API accepts.
package validator

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/domain/team"
)

// slugRegex validates slugs: lowercase letters, numbers, hyphens, starting
// and ending alphanumeric, no consecutive hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("org_role", validateOrgRole)
	_ = v.RegisterValidation("team_role", validateTeamRole)
	_ = v.RegisterValidation("project_role", validateProjectRole)
	_ = v.RegisterValidation("task_status", validateTaskStatus)
	_ = v.RegisterValidation("invitation_status", validateInvitationStatus)
	_ = v.RegisterValidation("slug", validateSlug)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation
// fails.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}

	return result
}

// Empty values pass the enum validators; 'required' owns presence.

func validateOrgRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, ok := organization.ParseRole(value)
	return ok
}

func validateTeamRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, ok := team.ParseRole(value)
	return ok
}

func validateProjectRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, ok := project.ParseRole(value)
	return ok
}

func validateTaskStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return task.Status(value).IsValid()
}

func validateInvitationStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return invitation.StatusFilter(value).IsValid()
}

func validateSlug(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return slugRegex.MatchString(value)
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "email":
		return "must be a valid email address"
	case "org_role":
		return fmt.Sprintf("must be one of: %s", joinRoles(organization.Roles()))
	case "team_role":
		return fmt.Sprintf("must be one of: %s", joinRoles(team.Roles()))
	case "project_role":
		return fmt.Sprintf("must be one of: %s", joinRoles(project.Roles()))
	case "task_status":
		return "must be one of: open, done"
	case "invitation_status":
		return "must be one of: pending, accepted, expired"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "slug":
		return "must be a valid slug (lowercase letters, numbers, hyphens only)"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

func joinRoles[T ~string](roles []T) string {
	strs := make([]string, len(roles))
	for i, r := range roles {
		strs[i] = string(r)
	}
	return strings.Join(strs, ", ")
}
