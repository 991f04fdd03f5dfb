package users

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type stubResolver struct {
	roles map[shared.ID]roles.Role
}

func (s stubResolver) Lookup(ctx context.Context, id shared.ID) (roles.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return roles.Role{}, roles.ErrNotFound
	}
	return role, nil
}

var testRoles = stubResolver{roles: map[shared.ID]roles.Role{
	"10": {ID: "10", Name: "Regional Manager"},
	"11": {ID: "11", Name: "Inventory Lead"},
}}

type capturedPut struct {
	path string
	body RoleAssignment
}

func newIdentityStore(t *testing.T, status int, reply string) (*httptest.Server, *capturedPut) {
	t.Helper()
	captured := &capturedPut{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		captured.path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestAssignRoleSendsNormalizedCode(t *testing.T) {
	srv, captured := newIdentityStore(t, http.StatusOK, `{"data":{"id":42,"email":"a@b.c","role":"SALES_MANAGER","permissionsRoleId":10,"permissionsRoleName":"Regional Manager"}}`)
	svc := NewService(NewRepository(backend.NewClient(backend.Options{BaseURL: srv.URL})), testRoles, nil)

	user, err := svc.AssignRole(context.Background(), "42", "10")
	require.NoError(t, err)
	assert.Equal(t, "/users/42", captured.path)
	assert.Equal(t, RoleAssignment{Role: roles.SalesManager, PermissionsRoleID: "10", PermissionsRoleName: "Regional Manager"}, captured.body)
	assert.Equal(t, shared.ID("42"), user.ID)
	assert.Equal(t, "a@b.c", user.Email)
}

func TestAssignRoleDefaultsToLeastPrivileged(t *testing.T) {
	srv, captured := newIdentityStore(t, http.StatusNoContent, "")
	svc := NewService(NewRepository(backend.NewClient(backend.Options{BaseURL: srv.URL})), testRoles, nil)

	user, err := svc.AssignRole(context.Background(), "7", "11")
	require.NoError(t, err)
	assert.Equal(t, roles.SalesMan, captured.body.Role)
	assert.Equal(t, roles.SalesMan, user.Role)
	assert.Equal(t, shared.ID("7"), user.ID)
}

func TestAssignRoleErrors(t *testing.T) {
	srv, _ := newIdentityStore(t, http.StatusNotFound, `{"message":"user not found"}`)
	svc := NewService(NewRepository(backend.NewClient(backend.Options{BaseURL: srv.URL})), testRoles, nil)
	ctx := context.Background()

	_, err := svc.AssignRole(ctx, "", "10")
	assert.ErrorIs(t, err, ErrUserRequired)
	_, err = svc.AssignRole(ctx, "1", "")
	assert.ErrorIs(t, err, ErrRoleRequired)
	_, err = svc.AssignRole(ctx, "1", "99")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.AssignRole(ctx, "1", "10")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAssignRoleHandler(t *testing.T) {
	srv, _ := newIdentityStore(t, http.StatusUnprocessableEntity, `{"message":["role is locked","try later"]}`)
	svc := NewService(NewRepository(backend.NewClient(backend.Options{BaseURL: srv.URL})), testRoles, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, func(*http.Request) (*Service, error) { return svc, nil }, rbac.Middleware{})

	router := func(grants map[string][]rbac.Action) http.Handler {
		eval := rbac.NewEvaluator(rbac.NewCapabilitySet(grants))
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(rbac.ContextWithEvaluator(req.Context(), eval)))
			})
		})
		r.Route("/v1/users", handler.MountRoutes)
		return r
	}

	put := func(h http.Handler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/v1/users/5/role", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	denied := put(router(map[string][]rbac.Action{rbac.ModuleEmployees: {rbac.ActionView}}), `{"roleId":"10"}`)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	allowed := router(map[string][]rbac.Action{rbac.ModuleEmployees: {rbac.ActionEdit}})
	assert.Equal(t, http.StatusBadRequest, put(allowed, `{}`).Code)

	rejected := put(allowed, `{"roleId":"10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Code)
	assert.Contains(t, rejected.Body.String(), "role is locked; try later")
}
