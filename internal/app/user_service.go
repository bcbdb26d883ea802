package app

import (
	"context"
	"fmt"

	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/logger"
)

// UserService keeps the user directory in sync with the identity provider.
type UserService struct {
	users  user.Repository
	logger *logger.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users user.Repository, log *logger.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: log.With("service", "user"),
	}
}

// SyncFromClaims upserts the directory row for a verified token. Runs on the
// request path, so it stays one statement in the repository.
func (s *UserService) SyncFromClaims(ctx context.Context, id shared.ID, email, name string) (*user.User, error) {
	u, err := user.NewFromClaims(id, email, name)
	if err != nil {
		return nil, err
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to sync user: %w", err)
	}
	return u, nil
}

// GetByID returns one directory row.
func (s *UserService) GetByID(ctx context.Context, id shared.ID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}
