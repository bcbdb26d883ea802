// Package pagination implements page/per_page windowing for list
// endpoints and the envelope that wraps paged query results.
package pagination

const (
	// DefaultPerPage is used when the caller does not ask for a page size.
	DefaultPerPage = 20
	// MaxPerPage caps the page size a caller may request.
	MaxPerPage = 100
)

// Pagination is a sanitized page window. Construct it with New so the
// bounds are always valid.
type Pagination struct {
	Page    int
	PerPage int
}

// New clamps the raw query values into a usable window: pages start at 1
// and the size is forced into [1, MaxPerPage], defaulting to DefaultPerPage.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage < 1:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset converts the window into a SQL OFFSET.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit converts the window into a SQL LIMIT.
func (p Pagination) Limit() int {
	return p.PerPage
}

// Result carries one page of items together with the totals a client
// needs to render paging controls.
type Result[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// NewResult wraps a page of items. A nil slice becomes an empty one so
// the JSON encoding is always an array, and TotalPages is the ceiling of
// total divided by the page size.
func NewResult[T any](data []T, total int64, p Pagination) Result[T] {
	if data == nil {
		data = []T{}
	}
	pages := (total + int64(p.PerPage) - 1) / int64(p.PerPage)
	return Result[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: int(pages),
	}
}
