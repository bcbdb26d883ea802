// Package user provides the user directory model. Authentication happens
// upstream; users are synced into the directory from verified token claims so
// memberships and audit entries can join against email and display name.
package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
)

// User represents a known identity in the directory.
type User struct {
	id         shared.ID
	email      string
	name       string
	lastSeenAt *time.Time
	createdAt  time.Time
	updatedAt  time.Time
}

// NewFromClaims creates a User from verified token claims. The ID comes from
// the token subject so membership rows created before the first sync still
// line up.
func NewFromClaims(id shared.ID, email, name string) (*User, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: id is required", shared.ErrValidation)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &User{
		id:         id,
		email:      email,
		name:       name,
		lastSeenAt: &now,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// Reconstitute recreates a User from persistence.
func Reconstitute(
	id shared.ID,
	email, name string,
	lastSeenAt *time.Time,
	createdAt, updatedAt time.Time,
) *User {
	return &User{
		id:         id,
		email:      email,
		name:       name,
		lastSeenAt: lastSeenAt,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// ID returns the user ID.
func (u *User) ID() shared.ID {
	return u.id
}

// Email returns the user email, lowercased.
func (u *User) Email() string {
	return u.email
}

// Name returns the display name.
func (u *User) Name() string {
	return u.name
}

// LastSeenAt returns the last time a request carried this user's token.
func (u *User) LastSeenAt() *time.Time {
	return u.lastSeenAt
}

// CreatedAt returns the creation timestamp.
func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

// UpdatedAt returns the last update timestamp.
func (u *User) UpdatedAt() time.Time {
	return u.updatedAt
}

// SyncClaims refreshes email and name from token claims and stamps last seen.
func (u *User) SyncClaims(email, name string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" && email != u.email {
		u.email = email
	}
	if name != "" && name != u.name {
		u.name = name
	}
	now := time.Now().UTC()
	u.lastSeenAt = &now
	u.updatedAt = now
}
