// Package apierror provides standardized API error responses. Handlers map
// domain errors onto these; the codes are part of the public API contract.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code represents a machine-readable error code.
type Code string

// Transport-level codes.
const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeValidationFailed   Code = "VALIDATION_FAILED"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
)

// Domain codes. Clients branch on these, so they stay stable.
const (
	CodeMissingTenantContext  Code = "MISSING_TENANT_CONTEXT"
	CodeInvalidTenantContext  Code = "INVALID_TENANT_CONTEXT"
	CodeMissingTeamContext    Code = "MISSING_TEAM_CONTEXT"
	CodeMissingProjectContext Code = "MISSING_PROJECT_CONTEXT"
	CodePrerequisiteMissing   Code = "PREREQUISITE_MEMBERSHIP_MISSING"
	CodeDuplicateName         Code = "DUPLICATE_NAME"
	CodeDuplicateSlug         Code = "DUPLICATE_SLUG"
	CodeAlreadyDeleted        Code = "ALREADY_DELETED"
	CodeNotDeleted            Code = "NOT_DELETED"
	CodeLastOwner             Code = "CANNOT_REMOVE_LAST_OWNER"
	CodeInvitationExpired     Code = "INVITATION_EXPIRED"
	CodeInvitationAccepted    Code = "INVITATION_ALREADY_ACCEPTED"
)

// Error represents a standardized API error.
type Error struct {
	// HTTP status code
	Status int `json:"-"`

	// Machine-readable error code
	Code Code `json:"code"`

	// Human-readable error message
	Message string `json:"message"`

	// Additional error details (optional)
	Details any `json:"details,omitempty"`

	// Internal error, logged but never exposed to the client
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Response represents the error response body.
type Response struct {
	Error     string `json:"error"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ToResponse converts the error to a response structure.
func (e *Error) ToResponse() Response {
	return Response{
		Error:   string(e.Code),
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// WriteJSON writes the error as JSON to the response writer.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToResponse())
}

// New creates a new API error.
func New(status int, code Code, message string) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithError attaches an internal error for logging.
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden creates a 403 Forbidden error.
func Forbidden(message string) *Error {
	if message == "" {
		message = "Access denied"
	}
	return New(http.StatusForbidden, CodeForbidden, message)
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *Error {
	message := "Resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return New(http.StatusNotFound, CodeNotFound, message)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

// ValidationFailed creates a 422 Unprocessable Entity error.
func ValidationFailed(message string, details any) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// InternalError creates a 500 Internal Server Error wrapping err. The
// wrapped error is for logs only.
func InternalError(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternalError,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return New(http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// RateLimitExceeded creates a 429 Too Many Requests error.
func RateLimitExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Rate limit exceeded")
}

// Tenant-context errors. Missing scope is the caller's request shape (400);
// an invalid scope means the caller cannot act in that organization (403).

func MissingTenantContext() *Error {
	return New(http.StatusBadRequest, CodeMissingTenantContext, "Request carries no organization context")
}

func InvalidTenantContext() *Error {
	return New(http.StatusForbidden, CodeInvalidTenantContext, "Caller cannot act in this organization")
}

func MissingTeamContext() *Error {
	return New(http.StatusBadRequest, CodeMissingTeamContext, "Request carries no team context")
}

func MissingProjectContext() *Error {
	return New(http.StatusBadRequest, CodeMissingProjectContext, "Request carries no project context")
}

// PermissionDenied creates a 403 naming the minimum role the operation needs.
func PermissionDenied(resource, requiredRole string) *Error {
	msg := "Access denied"
	if resource != "" && requiredRole != "" {
		msg = fmt.Sprintf("%s requires the %s role or above", resource, requiredRole)
	}
	return New(http.StatusForbidden, CodeForbidden, msg).
		WithDetails(map[string]string{"resource": resource, "required_role": requiredRole})
}

// PrerequisiteMissing creates a 409 for membership added out of order.
func PrerequisiteMissing(message string) *Error {
	return New(http.StatusConflict, CodePrerequisiteMissing, message)
}

// DuplicateName creates a 409 for a name already used within the scope.
func DuplicateName(message string) *Error {
	return New(http.StatusConflict, CodeDuplicateName, message)
}

// DuplicateSlug creates a 409 for a slug already taken globally.
func DuplicateSlug(message string) *Error {
	return New(http.StatusConflict, CodeDuplicateSlug, message)
}

// AlreadyDeleted creates a 409 for deleting a soft-deleted resource.
func AlreadyDeleted(resource string) *Error {
	return New(http.StatusConflict, CodeAlreadyDeleted, fmt.Sprintf("%s is already deleted", resource))
}

// NotDeleted creates a 409 for recovering an active resource.
func NotDeleted(resource string) *Error {
	return New(http.StatusConflict, CodeNotDeleted, fmt.Sprintf("%s is not deleted", resource))
}

// LastOwner creates a 409 for removing or demoting the only owner.
func LastOwner() *Error {
	return New(http.StatusConflict, CodeLastOwner, "An organization must keep at least one owner")
}

// InvitationExpired creates a 410 Gone for a token past its expiry.
func InvitationExpired() *Error {
	return New(http.StatusGone, CodeInvitationExpired, "Invitation has expired")
}

// InvitationAccepted creates a 409 for a token that was already used.
func InvitationAccepted() *Error {
	return New(http.StatusConflict, CodeInvitationAccepted, "Invitation has already been accepted")
}

// IsAPIError checks if an error is an API error.
func IsAPIError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}

// FromError converts any error to an API error, wrapping unknown errors as
// internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return InternalError(err)
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Add adds a validation error.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// ToAPIError converts validation errors to an API error.
func (v ValidationErrors) ToAPIError() *Error {
	return ValidationFailed("Validation failed", v)
}

// SafeBadRequest creates a 400 with a generic message; the cause is kept for
// logging only.
func SafeBadRequest(err error) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeBadRequest,
		Message: "Invalid request",
		Err:     err,
	}
}
