// Package shared provides domain types and error kinds used across all aggregates.
package shared

import (
	"errors"
	"fmt"
)

// Domain errors. Services wrap these with fmt.Errorf("%w: ...") to attach
// context; callers match with errors.Is. Resource lookups that fail because
// the row is absent and lookups the caller may not see both surface as
// ErrNotFound, so cross-tenant probing cannot distinguish the two.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrInternal      = errors.New("internal error")

	// Authorization.
	ErrPermissionDenied = errors.New("permission denied")

	// Tenant scope resolution.
	ErrMissingTenantContext  = errors.New("missing tenant context")
	ErrInvalidTenantContext  = errors.New("invalid tenant context")
	ErrMissingTeamContext    = errors.New("missing team context")
	ErrMissingProjectContext = errors.New("missing project context")

	// Membership management.
	ErrPrerequisiteMembership = errors.New("prerequisite membership missing")
	ErrLastOwner              = errors.New("cannot remove last owner")

	// Uniqueness.
	ErrDuplicateName = errors.New("duplicate name")
	ErrDuplicateSlug = errors.New("duplicate slug")

	// Soft-delete lifecycle.
	ErrAlreadyDeleted = errors.New("already deleted")
	ErrNotDeleted     = errors.New("not deleted")

	// Invitations.
	ErrInvitationExpired  = errors.New("invitation expired")
	ErrInvitationAccepted = errors.New("invitation already accepted")
)

// PermissionDeniedError carries the denied resource and the minimum role that
// would have been sufficient. The caller's actual role is deliberately absent.
type PermissionDeniedError struct {
	Resource     string
	RequiredRole string
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s requires %s or above", e.Resource, e.RequiredRole)
}

// Unwrap makes the error match errors.Is(err, ErrPermissionDenied).
func (e *PermissionDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// DeniedPermission builds a PermissionDeniedError for a resource and the
// minimum role the operation requires.
func DeniedPermission(resource, requiredRole string) error {
	return &PermissionDeniedError{Resource: resource, RequiredRole: requiredRole}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionDenied checks if the error is an authorization denial.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDuplicate checks if the error reports any uniqueness violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrDuplicateSlug) ||
		errors.Is(err, ErrAlreadyExists)
}
