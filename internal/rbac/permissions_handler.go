package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Services is the per-session slice of the access core a handler works on.
type Services interface {
	Catalog() *Catalog
	Assignments() *AssignmentService
	Roles() *roles.Registry
}

// ServicesFunc resolves the services of the session behind a request.
type ServicesFunc func(r *http.Request) (Services, error)

// RetryQueue schedules a background retry of a failed assignment step.
type RetryQueue interface {
	EnqueueAssignRetry(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error
}

// PermissionsHandler exposes the permission catalog and assignment writes.
type PermissionsHandler struct {
	logger    *slog.Logger
	services  ServicesFunc
	rbac      Middleware
	retry     RetryQueue
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance. retry may be nil.
func NewPermissionsHandler(logger *slog.Logger, services ServicesFunc, rbac Middleware, retry RetryQueue) *PermissionsHandler {
	return &PermissionsHandler{
		logger:    logger,
		services:  services,
		rbac:      rbac,
		retry:     retry,
		validator: httpx.NewValidator(),
	}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionView))
		r.Get("/", h.listPermissions)
		r.Get("/modules", h.listModules)
		r.Get("/roles", h.listRoles)
		r.Get("/{id}", h.getPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionCreate))
		r.Post("/", h.createPermission)
		r.Post("/bulk", h.bulkCreate)
		r.Post("/roles", h.createRole)
		r.Post("/assign", h.createAndAssign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionEdit))
		r.Patch("/{id}", h.updatePermission)
		r.Post("/role-permissions", h.assignToRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, ActionDelete))
		r.Delete("/{id}", h.deletePermission)
	})
}

type catalogMeta struct {
	Generation uint64 `json:"generation"`
	State      string `json:"state"`
	Truncated  bool   `json:"truncated"`
	Stale      bool   `json:"stale"`
}

type listResponse struct {
	listing.Page[Permission]
	Catalog catalogMeta `json:"catalog"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	catalog := svc.Catalog()
	if err := catalog.EnsureLoaded(r.Context()); err != nil {
		if catalog.Snapshot() == nil {
			h.fail(w, err)
			return
		}
		h.logger.Warn("serving stale permission catalog", slog.Any("error", err))
	}

	q, fields := parseQuery(r)
	if len(fields) > 0 {
		httpx.ValidationProblem(w, fields)
		return
	}
	snap := catalog.Snapshot()
	httpx.JSON(w, http.StatusOK, listResponse{
		Page: QueryPermissions(snap, q),
		Catalog: catalogMeta{
			Generation: snap.Generation,
			State:      catalog.State().String(),
			Truncated:  snap.Truncated,
			Stale:      catalog.Stale(),
		},
	})
}

func parseQuery(r *http.Request) (PermissionQuery, map[string]string) {
	values := r.URL.Query()
	fields := make(map[string]string)
	q := PermissionQuery{
		Search: values.Get("search"),
		Module: values.Get("module"),
		RoleID: shared.ID(values.Get("roleId")),
	}
	if raw := values.Get("action"); raw != "" {
		action, err := ParseAction(raw)
		if err != nil {
			fields["action"] = "must be one of create view edit delete"
		}
		q.Action = action
	}
	for name, dst := range map[string]*int{"page": &q.Page, "limit": &q.Limit} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields[name] = "must be a positive integer"
			continue
		}
		*dst = n
	}
	return q, fields
}

func (h *PermissionsHandler) listModules(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": svc.Catalog().Modules(r.Context())})
}

func (h *PermissionsHandler) getPermission(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	p, err := svc.Catalog().Get(r.Context(), shared.ID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type createPermissionRequest struct {
	Module      string `json:"module" validate:"required,max=100"`
	Action      string `json:"action" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req createPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"action": "must be one of create view edit delete"})
		return
	}
	p, err := svc.Assignments().CreatePermission(r.Context(), req.Module, action, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

type bulkCreateRequest struct {
	Module  string   `json:"module" validate:"required,max=100"`
	Actions []string `json:"actions" validate:"required,min=1,max=4,dive,required"`
}

func (h *PermissionsHandler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req bulkCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	actions, ok := parseActions(w, req.Actions)
	if !ok {
		return
	}
	created, err := svc.Assignments().BulkCreatePermissions(r.Context(), req.Module, actions)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

type updatePermissionRequest struct {
	Module      *string `json:"module" validate:"omitempty,min=1,max=100"`
	Action      *string `json:"action"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *PermissionsHandler) updatePermission(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req updatePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := PermissionPatch{Module: req.Module, Description: req.Description}
	if req.Action != nil {
		action, err := ParseAction(*req.Action)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"action": "must be one of create view edit delete"})
			return
		}
		patch.Action = &action
	}
	p, err := svc.Assignments().UpdatePermission(r.Context(), shared.ID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *PermissionsHandler) deletePermission(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if err := svc.Assignments().DeletePermission(r.Context(), shared.ID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	registry := svc.Roles()
	if err := registry.EnsureLoaded(r.Context()); err != nil && len(registry.Roles()) == 0 {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":  registry.Roles(),
		"state": registry.State().String(),
	})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *PermissionsHandler) createRole(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := svc.Assignments().CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

type assignRequest struct {
	RoleID        shared.ID   `json:"roleId" validate:"required"`
	PermissionIDs []shared.ID `json:"permissionIds" validate:"required,min=1,dive,required"`
}

func (h *PermissionsHandler) assignToRole(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := svc.Assignments().AssignPermissionsToRole(r.Context(), req.RoleID, req.PermissionIDs); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createAndAssignRequest struct {
	RoleID  shared.ID `json:"roleId" validate:"required"`
	Module  string    `json:"module" validate:"required,max=100"`
	Actions []string  `json:"actions" validate:"required,min=1,max=4,dive,required"`
	Retry   bool      `json:"retry"`
}

type createAndAssignResponse struct {
	AssignmentResult
	Message     string `json:"message,omitempty"`
	RetryQueued bool   `json:"retryQueued"`
}

func (h *PermissionsHandler) createAndAssign(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.resolve(w, r)
	if !ok {
		return
	}
	var req createAndAssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	actions, ok := parseActions(w, req.Actions)
	if !ok {
		return
	}
	result, err := svc.Assignments().CreateAndAssign(r.Context(), req.RoleID, req.Module, actions)
	var partial *AssignmentPartialFailure
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusCreated, createAndAssignResponse{AssignmentResult: result})
	case errors.As(err, &partial):
		resp := createAndAssignResponse{AssignmentResult: result, Message: backend.MessageFrom(partial.Err)}
		if req.Retry && h.retry != nil {
			if qerr := h.retry.EnqueueAssignRetry(r.Context(), partial.RoleID, partial.CreatedIDs()); qerr != nil {
				h.logger.Error("enqueue assignment retry", slog.String("role_id", partial.RoleID.String()), slog.Any("error", qerr))
			} else {
				resp.RetryQueued = true
			}
		}
		httpx.JSON(w, http.StatusMultiStatus, resp)
	default:
		h.fail(w, err)
	}
}

func parseActions(w http.ResponseWriter, raw []string) ([]Action, bool) {
	actions := make([]Action, 0, len(raw))
	for i, value := range raw {
		action, err := ParseAction(value)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"actions[" + strconv.Itoa(i) + "]": "must be one of create view edit delete"})
			return nil, false
		}
		actions = append(actions, action)
	}
	return actions, true
}

func (h *PermissionsHandler) resolve(w http.ResponseWriter, r *http.Request) (Services, bool) {
	svc, err := h.services(r)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return svc, true
}

func (h *PermissionsHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.ValidationProblem(w, httpx.ValidationFields(err))
		return false
	}
	return true
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, err error) {
	var catalogErr *CatalogError
	var apiErr *backend.APIError
	if errors.As(err, &catalogErr) {
		h.logger.Warn("permission catalog unavailable", slog.Any("error", err))
		if !errors.As(err, &apiErr) {
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "could not load permissions")
			return
		}
	}
	httpx.RespondError(w, err)
}
