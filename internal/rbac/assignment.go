package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RoleCreator creates roles; the session's role registry implements it.
type RoleCreator interface {
	Create(ctx context.Context, name, description string) (roles.Role, error)
}

// AssignmentStatus is the outcome of a composite create-and-assign.
type AssignmentStatus string

const (
	AssignmentSucceeded          AssignmentStatus = "succeeded"
	AssignmentFailed             AssignmentStatus = "failed"
	AssignmentPartiallySucceeded AssignmentStatus = "partially_succeeded"
)

// AssignmentResult describes what CreateAndAssign left behind on the backend.
type AssignmentResult struct {
	Status  AssignmentStatus `json:"status"`
	RoleID  shared.ID        `json:"roleId"`
	Created []Permission     `json:"created"`
}

// AssignmentOptions wires the collaborators of an AssignmentService.
type AssignmentOptions struct {
	Backend  WriteBackend
	Catalog  *Catalog
	Roles    RoleCreator
	Notifier Notifier
	// Origin tags published invalidations so the session can skip its own.
	Origin string
	Logger *slog.Logger
}

// AssignmentService performs permission and role writes. Writes are not
// transactional; see CreateAndAssign.
type AssignmentService struct {
	backend  WriteBackend
	catalog  *Catalog
	roles    RoleCreator
	notifier Notifier
	origin   string
	logger   *slog.Logger
}

// NewAssignmentService builds an AssignmentService.
func NewAssignmentService(opts AssignmentOptions) *AssignmentService {
	return &AssignmentService{
		backend:  opts.Backend,
		catalog:  opts.Catalog,
		roles:    opts.Roles,
		notifier: opts.Notifier,
		origin:   opts.Origin,
		logger:   opts.Logger,
	}
}

// CreatePermission creates one permission.
func (s *AssignmentService) CreatePermission(ctx context.Context, module string, action Action, description string) (Permission, error) {
	module = strings.TrimSpace(module)
	if module == "" {
		return Permission{}, ErrModuleRequired
	}
	if !action.Valid() {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	p, err := s.backend.CreatePermission(ctx, module, action, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: create permission: %w", err)
	}
	s.afterWrite(ctx, "create_permission")
	return p, nil
}

// BulkCreatePermissions creates one permission per distinct action of module.
func (s *AssignmentService) BulkCreatePermissions(ctx context.Context, module string, actions []Action) ([]Permission, error) {
	created, err := s.bulkCreate(ctx, module, actions)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, "bulk_create_permissions")
	return created, nil
}

func (s *AssignmentService) bulkCreate(ctx context.Context, module string, actions []Action) ([]Permission, error) {
	module = strings.TrimSpace(module)
	if module == "" {
		return nil, ErrModuleRequired
	}
	distinct, err := distinctActions(actions)
	if err != nil {
		return nil, err
	}
	created, err := s.backend.BulkCreatePermissions(ctx, module, distinct)
	if err != nil {
		return nil, fmt.Errorf("rbac: bulk create permissions: %w", err)
	}
	return created, nil
}

// UpdatePermission patches a permission.
func (s *AssignmentService) UpdatePermission(ctx context.Context, id shared.ID, patch PermissionPatch) (Permission, error) {
	if patch.Action != nil && !patch.Action.Valid() {
		return Permission{}, fmt.Errorf("%w: %q", ErrInvalidAction, *patch.Action)
	}
	if patch.Module != nil && strings.TrimSpace(*patch.Module) == "" {
		return Permission{}, ErrModuleRequired
	}
	p, err := s.backend.UpdatePermission(ctx, id, patch)
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: update permission: %w", err)
	}
	s.afterWrite(ctx, "update_permission")
	return p, nil
}

// DeletePermission deletes a permission.
func (s *AssignmentService) DeletePermission(ctx context.Context, id shared.ID) error {
	if err := s.backend.DeletePermission(ctx, id); err != nil {
		return fmt.Errorf("rbac: delete permission: %w", err)
	}
	s.afterWrite(ctx, "delete_permission")
	return nil
}

// AssignPermissionsToRole attaches permissions to a role.
func (s *AssignmentService) AssignPermissionsToRole(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error {
	if err := s.assign(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.afterWrite(ctx, "assign_permissions")
	return nil
}

func (s *AssignmentService) assign(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error {
	if roleID.IsZero() {
		return ErrRoleRequired
	}
	ids := uniqueIDs(permissionIDs)
	if len(ids) == 0 {
		return ErrNoPermissions
	}
	if err := s.backend.AssignPermissionsToRole(ctx, roleID, ids); err != nil {
		return fmt.Errorf("rbac: assign permissions to role %s: %w", roleID, err)
	}
	return nil
}

// CreateRole creates a role through the session's registry.
func (s *AssignmentService) CreateRole(ctx context.Context, name, description string) (roles.Role, error) {
	if s.roles == nil {
		return roles.Role{}, errors.New("rbac: role registry not configured")
	}
	return s.roles.Create(ctx, name, description)
}

// CreateAndAssign bulk-creates the permissions of module and then attaches
// them to roleID in a second call. It is not transactional: when the second
// call fails the created permissions stay on the backend unassigned and the
// error is an *AssignmentPartialFailure. Nothing is rolled back; callers retry
// the assignment with the ids it carries.
func (s *AssignmentService) CreateAndAssign(ctx context.Context, roleID shared.ID, module string, actions []Action) (AssignmentResult, error) {
	result := AssignmentResult{Status: AssignmentFailed, RoleID: roleID}
	if roleID.IsZero() {
		return result, ErrRoleRequired
	}
	created, err := s.bulkCreate(ctx, module, actions)
	if err != nil {
		return result, err
	}
	result.Created = created

	ids := make([]shared.ID, 0, len(created))
	for _, p := range created {
		ids = append(ids, p.ID)
	}
	if err := s.assign(ctx, roleID, ids); err != nil {
		s.afterWrite(ctx, "create_and_assign")
		result.Status = AssignmentPartiallySucceeded
		if s.logger != nil {
			s.logger.Error("permissions created but not assigned",
				slog.String("role_id", roleID.String()),
				slog.String("module", module),
				slog.Int("created", len(created)),
				slog.Any("error", err),
			)
		}
		return result, &AssignmentPartialFailure{RoleID: roleID, Created: created, Err: err}
	}
	s.afterWrite(ctx, "create_and_assign")
	result.Status = AssignmentSucceeded
	return result, nil
}

// afterWrite refreshes the session catalog and tells other sessions to do the
// same. Neither step can turn a completed write into a failure.
func (s *AssignmentService) afterWrite(ctx context.Context, op string) {
	if s.catalog != nil {
		s.catalog.Invalidate()
		if _, err := s.catalog.LoadAll(ctx); err != nil && !IsTruncated(err) && s.logger != nil {
			s.logger.Warn("catalog reload after write failed", slog.String("op", op), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, s.origin); err != nil && s.logger != nil {
			s.logger.Warn("publish catalog invalidation", slog.String("op", op), slog.Any("error", err))
		}
	}
}

func distinctActions(actions []Action) ([]Action, error) {
	seen := make(map[Action]struct{}, len(actions))
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		parsed, err := ParseAction(string(a))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[parsed]; ok {
			continue
		}
		seen[parsed] = struct{}{}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return nil, ErrNoActions
	}
	return out, nil
}
