package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var (
	// ErrUserNotFound indicates the identity store has no such user.
	ErrUserNotFound = fmt.Errorf("users: user %w", shared.ErrNotFound)
	// ErrUserRequired rejects assignments without a user id.
	ErrUserRequired = fmt.Errorf("users: user id required: %w", shared.ErrValidation)
	// ErrRoleRequired rejects assignments without a role id.
	ErrRoleRequired = fmt.Errorf("users: role id required: %w", shared.ErrValidation)
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	UpdateRole(ctx context.Context, userID shared.ID, assignment RoleAssignment) (User, error)
}

// RoleResolver finds roles by id; the session's role registry implements it.
type RoleResolver interface {
	Lookup(ctx context.Context, id shared.ID) (roles.Role, error)
}

// Service handles identity role assignment.
type Service struct {
	repo       RepositoryPort
	roles      RoleResolver
	normalizer roles.Normalizer
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, resolver RoleResolver, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: resolver, normalizer: roles.Normalizer{Logger: logger}}
}

// AssignRole points userID at roleID. The coarse role code sent alongside is
// derived from the role's name.
func (s *Service) AssignRole(ctx context.Context, userID, roleID shared.ID) (User, error) {
	if userID.IsZero() {
		return User{}, ErrUserRequired
	}
	if roleID.IsZero() {
		return User{}, ErrRoleRequired
	}
	role, err := s.roles.Lookup(ctx, roleID)
	if err != nil {
		return User{}, fmt.Errorf("users: resolve role %s: %w", roleID, err)
	}
	assignment := RoleAssignment{
		Role:                s.normalizer.Normalize(role.Name),
		PermissionsRoleID:   role.ID,
		PermissionsRoleName: role.Name,
	}
	user, err := s.repo.UpdateRole(ctx, userID, assignment)
	if err != nil {
		return User{}, fmt.Errorf("users: assign role: %w", err)
	}
	return user, nil
}
