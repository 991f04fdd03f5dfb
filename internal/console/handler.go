package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// SessionHeader carries the session id on every console request.
const SessionHeader = "X-Session-ID"

type scopeContextKey struct{}

// ContextWithScope stores the scope in context.
func ContextWithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from context.
func ScopeFromContext(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(*Scope)
	return scope
}

func scopeFromRequest(r *http.Request) (*Scope, error) {
	scope := ScopeFromContext(r.Context())
	if scope == nil {
		return nil, fmt.Errorf("console: %w", shared.ErrSessionMissing)
	}
	return scope, nil
}

// Services resolves the rbac services of the request's session.
func Services(r *http.Request) (rbac.Services, error) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		return nil, err
	}
	return scope, nil
}

// UserService resolves the user service of the request's session.
func UserService(r *http.Request) (*users.Service, error) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		return nil, err
	}
	return scope.Users(), nil
}

// Handler exposes session lifecycle endpoints.
type Handler struct {
	logger     *slog.Logger
	manager    *Manager
	validator  *validator.Validate
	normalizer roles.Normalizer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	return &Handler{
		logger:     logger,
		manager:    manager,
		validator:  httpx.NewValidator(),
		normalizer: roles.Normalizer{Logger: logger},
	}
}

// Middleware resolves the session header into a scope and puts the scope and
// its evaluator in the request context. Unknown sessions get a 401.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		scope, ok := h.manager.Get(id)
		if id == "" || !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session missing or expired")
			return
		}
		scope.Refresh(r.Context())
		ctx := ContextWithScope(r.Context(), scope)
		ctx = rbac.ContextWithEvaluator(ctx, scope.Evaluator())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MountRoutes registers session routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.openSession)
	r.Group(func(r chi.Router) {
		r.Use(h.Middleware)
		r.Delete("/", h.endSession)
		r.Get("/capabilities", h.capabilities)
	})
}

// openSessionRequest is posted by the login front door after it has
// authenticated the user. Role, permissionsRoleId and permissions are taken
// as given; the handler must only be reachable from that upstream.
type openSessionRequest struct {
	UserID              shared.ID         `json:"userId" validate:"required"`
	Role                string            `json:"role"`
	PermissionsRoleID   shared.ID         `json:"permissionsRoleId"`
	PermissionsRoleName string            `json:"permissionsRoleName" validate:"max=100"`
	Permissions         []rbac.Permission `json:"permissions"`
	Token               string            `json:"token" validate:"required"`
}

type sessionView struct {
	SessionID    string              `json:"sessionId"`
	Identity     Identity            `json:"identity"`
	RoleLabel    string              `json:"roleLabel"`
	Loaded       bool                `json:"loaded"`
	Generation   uint64              `json:"generation"`
	CatalogState string              `json:"catalogState"`
	RolesState   string              `json:"rolesState"`
	Capabilities *rbac.CapabilitySet `json:"capabilities"`
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, httpx.ValidationFields(err))
		return
	}
	identity := Identity{
		UserID:              req.UserID,
		PermissionsRoleID:   req.PermissionsRoleID,
		PermissionsRoleName: req.PermissionsRoleName,
		Direct:              req.Permissions,
		Token:               req.Token,
	}
	if req.Role != "" {
		code, err := roles.ParseRoleCode(req.Role)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"role": "must be one of SUPER_ADMIN SALES_MANAGER SALES_MAN"})
			return
		}
		identity.Role = code
	} else {
		identity.Role = h.normalizer.Normalize(req.PermissionsRoleName)
	}

	scope := h.manager.Open(identity)
	if err := scope.Warm(r.Context()); err != nil {
		h.logger.Warn("session warm-up incomplete", slog.String("session_id", scope.ID()), slog.Any("error", err))
	}
	w.Header().Set(SessionHeader, scope.ID())
	httpx.JSON(w, http.StatusCreated, h.view(scope))
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFromContext(r.Context())
	h.manager.End(scope.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.view(ScopeFromContext(r.Context())))
}

func (h *Handler) view(scope *Scope) sessionView {
	eval := scope.Evaluator()
	set := eval.Set()
	if set == nil {
		set = rbac.NewCapabilitySet(nil)
	}
	return sessionView{
		SessionID:    scope.ID(),
		Identity:     scope.Identity(),
		RoleLabel:    scope.RoleLabel(),
		Loaded:       eval.Loaded(),
		Generation:   scope.Catalog().Generation(),
		CatalogState: scope.Catalog().State().String(),
		RolesState:   scope.Roles().State().String(),
		Capabilities: set,
	}
}
