package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
	"github.com/taskforge/api/pkg/validator"
)

// URL scheme constants
const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// apiTimeFormat is the timestamp layout used in all response bodies.
const apiTimeFormat = "2006-01-02T15:04:05Z07:00"

func formatTime(t time.Time) string {
	return t.Format(apiTimeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(apiTimeFormat)
	return &s
}

func idPtr(id *shared.ID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// PaginationLinks contains HATEOAS-style pagination links.
type PaginationLinks struct {
	Self  string `json:"self"`
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// ListResponse represents a paginated list response.
// This is a generic type that can be reused across all handlers.
type ListResponse[T any] struct {
	Data       []T              `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Links      *PaginationLinks `json:"links,omitempty"`
}

// newListResponse converts a pagination result into a ListResponse,
// mapping each entity through convert and attaching navigation links.
func newListResponse[E, T any](r *http.Request, res *pagination.Result[E], convert func(E) T) ListResponse[T] {
	data := make([]T, 0, len(res.Data))
	for _, e := range res.Data {
		data = append(data, convert(e))
	}
	return ListResponse[T]{
		Data:       data,
		Total:      res.Total,
		Page:       res.Page,
		PerPage:    res.PerPage,
		TotalPages: res.TotalPages,
		Links:      NewPaginationLinks(r, res.Page, res.PerPage, res.TotalPages),
	}
}

// NewPaginationLinks creates pagination links based on the current request.
// It preserves all existing query parameters while updating page number.
func NewPaginationLinks(r *http.Request, page, perPage, totalPages int) *PaginationLinks {
	if totalPages == 0 {
		return nil
	}

	baseURL := buildBaseURL(r)
	query := r.URL.Query()

	links := &PaginationLinks{
		Self:  buildPageURL(baseURL, query, page, perPage),
		First: buildPageURL(baseURL, query, 1, perPage),
	}

	if page > 1 {
		links.Prev = buildPageURL(baseURL, query, page-1, perPage)
	}

	if page < totalPages {
		links.Next = buildPageURL(baseURL, query, page+1, perPage)
	}

	if totalPages > 1 {
		links.Last = buildPageURL(baseURL, query, totalPages, perPage)
	}

	return links
}

// buildBaseURL constructs the base URL from the request.
func buildBaseURL(r *http.Request) string {
	scheme := schemeHTTPS
	if r.TLS == nil {
		// Check X-Forwarded-Proto header for reverse proxy scenarios
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = schemeHTTP
		}
	}

	host := r.Host
	if fwdHost := r.Header.Get("X-Forwarded-Host"); fwdHost != "" {
		host = fwdHost
	}

	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.Path)
}

// buildPageURL builds a URL with the specified page number.
func buildPageURL(baseURL string, query url.Values, page, perPage int) string {
	// Clone the query params to avoid modifying the original
	params := make(url.Values)
	for k, v := range query {
		params[k] = v
	}

	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	return baseURL + "?" + params.Encode()
}

// respondJSON writes body as JSON with the given status code.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body) //nolint:errcheck // headers already sent
	}
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) *apierror.Error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apierror.New(http.StatusRequestEntityTooLarge, apierror.CodeBadRequest, "Request body too large")
		}
		return apierror.BadRequest("Invalid request body")
	}
	return nil
}

// pathID parses a path parameter as an entity ID. Malformed IDs map to
// a not-found error so URL probing cannot distinguish a bad ID from a
// missing row.
func pathID(r *http.Request, param, resource string) (shared.ID, *apierror.Error) {
	id, err := shared.ParseID(infrahttp.PathParam(r, param))
	if err != nil {
		return shared.ID{}, apierror.NotFound(resource)
	}
	return id, nil
}

// parseQueryArray parses a comma-separated query parameter into a string slice.
// Returns nil if the input is empty.
func parseQueryArray(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// parseQueryInt parses a query parameter as an integer.
// Returns defaultVal if the input is empty or invalid.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// parseQueryBool parses a query parameter as a boolean.
// Accepts "true" and "1" as true; anything else is false.
func parseQueryBool(s string) bool {
	return s == "true" || s == "1"
}

// parseQueryTime parses a query parameter as an RFC3339 timestamp.
// Returns nil if the input is empty or invalid.
func parseQueryTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// handleServiceError maps domain errors to API error responses. resource
// names the entity for not-found and soft-delete conflict messages.
func handleServiceError(w http.ResponseWriter, log *logger.Logger, resource string, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		apiErr.WriteJSON(w)
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		apierror.ValidationFailed("Validation failed", validationErrs).WriteJSON(w)
		return
	}

	var denied *shared.PermissionDeniedError
	if errors.As(err, &denied) {
		apierror.PermissionDenied(denied.Resource, denied.RequiredRole).WriteJSON(w)
		return
	}

	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound(resource).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation):
		apierror.ValidationFailed(err.Error(), nil).WriteJSON(w)
	case errors.Is(err, shared.ErrMissingTenantContext):
		apierror.MissingTenantContext().WriteJSON(w)
	case errors.Is(err, shared.ErrInvalidTenantContext):
		apierror.InvalidTenantContext().WriteJSON(w)
	case errors.Is(err, shared.ErrMissingTeamContext):
		apierror.MissingTeamContext().WriteJSON(w)
	case errors.Is(err, shared.ErrMissingProjectContext):
		apierror.MissingProjectContext().WriteJSON(w)
	case errors.Is(err, shared.ErrPrerequisiteMembership):
		apierror.PrerequisiteMissing(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrLastOwner):
		apierror.LastOwner().WriteJSON(w)
	case errors.Is(err, shared.ErrDuplicateName):
		apierror.DuplicateName(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrDuplicateSlug):
		apierror.DuplicateSlug(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyDeleted):
		apierror.AlreadyDeleted(resource).WriteJSON(w)
	case errors.Is(err, shared.ErrNotDeleted):
		apierror.NotDeleted(resource).WriteJSON(w)
	case errors.Is(err, shared.ErrInvitationExpired):
		apierror.InvitationExpired().WriteJSON(w)
	case errors.Is(err, shared.ErrInvitationAccepted):
		apierror.InvitationAccepted().WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyExists):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrPermissionDenied):
		apierror.Forbidden("Permission denied").WriteJSON(w)
	default:
		log.Error("unhandled service error", "resource", resource, "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}
