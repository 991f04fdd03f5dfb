package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	permissionsPath     = "/permissions"
	bulkPath            = "/permissions/bulk"
	modulesPath         = "/permissions/modules"
	rolePermissionsPath = "/permissions/role-permissions"
)

// CatalogSource is the read side of the permissions API.
type CatalogSource interface {
	ListPermissions(ctx context.Context, req PageRequest) (json.RawMessage, error)
	GetPermission(ctx context.Context, id shared.ID) (Permission, error)
	ListModules(ctx context.Context) ([]string, error)
}

// WriteBackend is the write side of the permissions API.
type WriteBackend interface {
	CreatePermission(ctx context.Context, module string, action Action, description string) (Permission, error)
	BulkCreatePermissions(ctx context.Context, module string, actions []Action) ([]Permission, error)
	UpdatePermission(ctx context.Context, id shared.ID, patch PermissionPatch) (Permission, error)
	DeletePermission(ctx context.Context, id shared.ID) error
	AssignPermissionsToRole(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error
}

// Repository speaks the permissions endpoints of the backend.
type Repository struct {
	client *backend.Client
	logger *slog.Logger
}

// NewRepository constructs a Repository.
func NewRepository(client *backend.Client, logger *slog.Logger) *Repository {
	return &Repository{client: client, logger: logger}
}

// ListPermissions returns one raw page; shape normalization is left to the
// caller.
func (r *Repository) ListPermissions(ctx context.Context, req PageRequest) (json.RawMessage, error) {
	query := url.Values{}
	if req.Page > 0 {
		query.Set("page", strconv.Itoa(req.Page))
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Search != "" {
		query.Set("search", req.Search)
	}
	if req.Module != "" {
		query.Set("module", req.Module)
	}
	if req.Action != "" {
		query.Set("action", string(req.Action))
	}
	return r.client.Get(ctx, permissionsPath, query)
}

// GetPermission fetches one permission.
func (r *Repository) GetPermission(ctx context.Context, id shared.ID) (Permission, error) {
	raw, err := r.client.Get(ctx, permissionPath(id), nil)
	if err != nil {
		if backend.IsNotFound(err) {
			return Permission{}, fmt.Errorf("permission %s: %w", id, ErrNotFound)
		}
		return Permission{}, err
	}
	return listing.DecodeOne[Permission](raw)
}

// ListModules returns the module names known to the backend.
func (r *Repository) ListModules(ctx context.Context) ([]string, error) {
	raw, err := r.client.Get(ctx, modulesPath, nil)
	if err != nil {
		return nil, err
	}
	page, shapeErr := listing.Decode[string](raw)
	if shapeErr != nil && r.logger != nil {
		r.logger.Warn("modules list shape", slog.Any("error", shapeErr))
	}
	return page.Items, nil
}

type createPermissionBody struct {
	Module      string `json:"module"`
	Action      Action `json:"action"`
	Description string `json:"description,omitempty"`
}

// CreatePermission posts a single permission.
func (r *Repository) CreatePermission(ctx context.Context, module string, action Action, description string) (Permission, error) {
	raw, err := r.client.Post(ctx, permissionsPath, createPermissionBody{Module: module, Action: action, Description: description})
	if err != nil {
		return Permission{}, err
	}
	return listing.DecodeOne[Permission](raw)
}

type bulkCreateBody struct {
	Module  string   `json:"module"`
	Actions []Action `json:"actions"`
}

// BulkCreatePermissions posts several actions of one module at once.
func (r *Repository) BulkCreatePermissions(ctx context.Context, module string, actions []Action) ([]Permission, error) {
	raw, err := r.client.Post(ctx, bulkPath, bulkCreateBody{Module: module, Actions: actions})
	if err != nil {
		return nil, err
	}
	page, shapeErr := listing.Decode[Permission](raw)
	if shapeErr != nil {
		return nil, fmt.Errorf("rbac: bulk create response: %w", shapeErr)
	}
	return page.Items, nil
}

// UpdatePermission patches a permission.
func (r *Repository) UpdatePermission(ctx context.Context, id shared.ID, patch PermissionPatch) (Permission, error) {
	raw, err := r.client.Do(ctx, http.MethodPatch, permissionPath(id), nil, patch)
	if err != nil {
		if backend.IsNotFound(err) {
			return Permission{}, fmt.Errorf("permission %s: %w", id, ErrNotFound)
		}
		return Permission{}, err
	}
	return listing.DecodeOne[Permission](raw)
}

// DeletePermission removes a permission.
func (r *Repository) DeletePermission(ctx context.Context, id shared.ID) error {
	_, err := r.client.Do(ctx, http.MethodDelete, permissionPath(id), nil, nil)
	if err != nil && backend.IsNotFound(err) {
		return fmt.Errorf("permission %s: %w", id, ErrNotFound)
	}
	return err
}

type assignBody struct {
	RoleID        shared.ID   `json:"roleId"`
	PermissionIDs []shared.ID `json:"permissionIds"`
}

// AssignPermissionsToRole links permissions to a role.
func (r *Repository) AssignPermissionsToRole(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error {
	_, err := r.client.Post(ctx, rolePermissionsPath, assignBody{RoleID: roleID, PermissionIDs: permissionIDs})
	return err
}

func permissionPath(id shared.ID) string {
	return permissionsPath + "/" + url.PathEscape(id.String())
}
