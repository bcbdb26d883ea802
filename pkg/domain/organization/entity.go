// Package organization provides the tenancy root aggregate: the organization
// entity, its role vocabulary, and its membership.
package organization

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/taskforge/api/pkg/domain/shared"
)

var (
	slugRegex    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugRunes = regexp.MustCompile(`[^a-z0-9]+`)
)

// Organization is the root of the tenancy tree. Everything below it carries
// its id so tenant isolation is a single predicate.
type Organization struct {
	id          shared.ID
	name        string
	slug        string
	description string
	createdBy   shared.ID
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

// NewOrganization creates an organization. The creator becomes its first
// Owner member when the create transaction commits.
func NewOrganization(name, slug string, createdBy shared.ID) (*Organization, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if slug == "" {
		slug = GenerateSlug(name)
	}
	if !IsValidSlug(slug) {
		return nil, fmt.Errorf("%w: slug must be 3-100 characters of lowercase letters, numbers, and hyphens", shared.ErrValidation)
	}
	if createdBy.IsZero() {
		return nil, fmt.Errorf("%w: createdBy is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Organization{
		id:        shared.NewID(),
		name:      name,
		slug:      strings.ToLower(slug),
		createdBy: createdBy,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstitute recreates an Organization from persistence.
func Reconstitute(
	id shared.ID,
	name, slug, description string,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
	deletedAt *time.Time,
) *Organization {
	return &Organization{
		id:          id,
		name:        name,
		slug:        slug,
		description: description,
		createdBy:   createdBy,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		deletedAt:   deletedAt,
	}
}

// ID returns the organization ID.
func (o *Organization) ID() shared.ID {
	return o.id
}

// Name returns the organization name.
func (o *Organization) Name() string {
	return o.name
}

// Slug returns the globally unique, URL-friendly identifier.
func (o *Organization) Slug() string {
	return o.slug
}

// Description returns the organization description.
func (o *Organization) Description() string {
	return o.description
}

// CreatedBy returns the bootstrapping actor.
func (o *Organization) CreatedBy() shared.ID {
	return o.createdBy
}

// CreatedAt returns the creation timestamp.
func (o *Organization) CreatedAt() time.Time {
	return o.createdAt
}

// UpdatedAt returns the last update timestamp.
func (o *Organization) UpdatedAt() time.Time {
	return o.updatedAt
}

// DeletedAt returns the soft-delete timestamp, nil while active.
func (o *Organization) DeletedAt() *time.Time {
	return o.deletedAt
}

// IsDeleted reports whether the organization is soft-deleted.
func (o *Organization) IsDeleted() bool {
	return o.deletedAt != nil
}

// UpdateName updates the organization name.
func (o *Organization) UpdateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	o.name = name
	o.updatedAt = time.Now().UTC()
	return nil
}

// UpdateDescription updates the organization description.
func (o *Organization) UpdateDescription(description string) {
	o.description = description
	o.updatedAt = time.Now().UTC()
}

// SoftDelete marks the organization deleted at the given instant.
func (o *Organization) SoftDelete(at time.Time) error {
	if o.deletedAt != nil {
		return fmt.Errorf("%w: organization %s", shared.ErrAlreadyDeleted, o.id)
	}
	at = at.UTC()
	o.deletedAt = &at
	o.updatedAt = at
	return nil
}

// Recover clears the soft-delete mark.
func (o *Organization) Recover() error {
	if o.deletedAt == nil {
		return fmt.Errorf("%w: organization %s", shared.ErrNotDeleted, o.id)
	}
	o.deletedAt = nil
	o.updatedAt = time.Now().UTC()
	return nil
}

// IsValidSlug checks if a slug is valid.
func IsValidSlug(slug string) bool {
	if len(slug) < 3 || len(slug) > 100 {
		return false
	}
	return slugRegex.MatchString(slug)
}

// GenerateSlug derives a slug from a display name. Unicode letters are
// normalized to NFD and combining marks stripped, so "Café Crème" becomes
// "cafe-creme".
func GenerateSlug(name string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(stripper, name)
	if err != nil {
		ascii = name
	}

	slug := strings.ToLower(ascii)
	slug = nonSlugRunes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 100 {
		slug = strings.Trim(slug[:100], "-")
	}
	return slug
}
