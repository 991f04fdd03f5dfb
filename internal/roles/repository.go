package roles

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
)

const rolesPath = "/permissions/roles"

// Repository talks to the roles endpoints of the backend.
type Repository struct {
	client *backend.Client
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(client *backend.Client, logger *slog.Logger) *Repository {
	return &Repository{client: client, logger: logger}
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	raw, err := r.client.Get(ctx, rolesPath, nil)
	if err != nil {
		return nil, err
	}
	page, shapeErr := listing.Decode[Role](raw)
	if shapeErr != nil && r.logger != nil {
		r.logger.Warn("roles list shape", slog.Any("error", shapeErr))
	}
	return page.Items, nil
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	raw, err := r.client.Post(ctx, rolesPath, createRoleRequest{Name: name, Description: description})
	if err != nil {
		return Role{}, err
	}
	role, err := listing.DecodeOne[Role](raw)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}
