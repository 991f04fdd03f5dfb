package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// ServiceFunc resolves the user service of the session behind a request.
type ServiceFunc func(r *http.Request) (*Service, error)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ServiceFunc
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service ServiceFunc, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ModuleEmployees, rbac.ActionEdit))
		r.Put("/{id}/role", h.assignRole)
	})
}

type assignRoleRequest struct {
	RoleID shared.ID `json:"roleId" validate:"required"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.ValidationFields(err))
		return
	}
	userID := shared.ID(chi.URLParam(r, "id"))
	user, err := svc.AssignRole(r.Context(), userID, req.RoleID)
	if err != nil {
		h.logger.Warn("assign role failed", slog.String("user_id", userID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
