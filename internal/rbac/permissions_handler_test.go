package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type testServices struct {
	catalog     *Catalog
	assignments *AssignmentService
	registry    *roles.Registry
}

func (s testServices) Catalog() *Catalog               { return s.catalog }
func (s testServices) Assignments() *AssignmentService { return s.assignments }
func (s testServices) Roles() *roles.Registry          { return s.registry }

type stubRoleRepo struct {
	roles []roles.Role
}

func (s *stubRoleRepo) ListRoles(ctx context.Context) ([]roles.Role, error) {
	return s.roles, nil
}

func (s *stubRoleRepo) CreateRole(ctx context.Context, name, description string) (roles.Role, error) {
	role := roles.Role{ID: shared.ID("r" + name), Name: name, Description: description}
	s.roles = append(s.roles, role)
	return role, nil
}

type stubRetry struct {
	roleID shared.ID
	ids    []shared.ID
}

func (s *stubRetry) EnqueueAssignRetry(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error {
	s.roleID, s.ids = roleID, permissionIDs
	return nil
}

func newTestRouter(t *testing.T, backend *fakeBackend, grants map[string][]Action) (http.Handler, *stubRetry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	registry := roles.NewRegistry(&stubRoleRepo{roles: []roles.Role{{ID: "r1", Name: "Sales Manager"}}}, logger)
	catalog := NewCatalog(backend, CatalogOptions{Logger: logger})
	svc := testServices{
		catalog:  catalog,
		registry: registry,
		assignments: NewAssignmentService(AssignmentOptions{
			Backend: backend,
			Catalog: catalog,
			Roles:   registry,
			Logger:  logger,
		}),
	}
	retry := &stubRetry{}
	handler := NewPermissionsHandler(logger, func(*http.Request) (Services, error) { return svc, nil }, Middleware{Logger: logger}, retry)

	eval := NewEvaluator(NewCapabilitySet(grants))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(ContextWithEvaluator(req.Context(), eval)))
		})
	})
	r.Route("/v1/permissions", handler.MountRoutes)
	return r, retry
}

var fullAccess = map[string][]Action{ModulePermissions: Actions}

func doRequest(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListPermissionsFiltersLocally(t *testing.T) {
	backend := newFakeBackend(seedPermissions(12)...)
	router, _ := newTestRouter(t, backend, fullAccess)

	rr := doRequest(router, http.MethodGet, "/v1/permissions?module=module001&limit=2&page=2", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Items      []Permission `json:"items"`
		Total      int          `json:"total"`
		Page       int          `json:"page"`
		TotalPages int          `json:"totalPages"`
		HasPrev    bool         `json:"hasPrev"`
		Catalog    catalogMeta  `json:"catalog"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 2, body.TotalPages)
	assert.True(t, body.HasPrev)
	require.Len(t, body.Items, 2)
	assert.Equal(t, ActionEdit, body.Items[0].Action)
	assert.Equal(t, uint64(1), body.Catalog.Generation)
	assert.Equal(t, "ready", body.Catalog.State)
}

func TestListPermissionsPageFarBeyondEnd(t *testing.T) {
	router, _ := newTestRouter(t, newFakeBackend(seedPermissions(5)...), fullAccess)

	rr := doRequest(router, http.MethodGet, "/v1/permissions?page=1844674407370955161&limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Items []Permission `json:"items"`
		Total int          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Items)
	assert.Equal(t, 5, body.Total)
}

func TestListPermissionsRejectsBadQuery(t *testing.T) {
	router, _ := newTestRouter(t, newFakeBackend(), fullAccess)
	rr := doRequest(router, http.MethodGet, "/v1/permissions?action=approve&limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"action"`)
	assert.Contains(t, rr.Body.String(), `"limit"`)
}

func TestListPermissionsUnavailableOnFirstLoad(t *testing.T) {
	backend := newFakeBackend()
	backend.setListErr(errBackendDown)
	router, _ := newTestRouter(t, backend, fullAccess)
	rr := doRequest(router, http.MethodGet, "/v1/permissions", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "could not load permissions")
}

func TestPermissionRoutesRequireCapability(t *testing.T) {
	router, _ := newTestRouter(t, newFakeBackend(), map[string][]Action{ModulePermissions: {ActionView}})

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/v1/permissions/modules", "").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, http.MethodPost, "/v1/permissions", `{"module":"x","action":"view"}`).Code)
	assert.Equal(t, http.StatusForbidden, doRequest(router, http.MethodDelete, "/v1/permissions/p1", "").Code)
}

func TestCreatePermissionValidates(t *testing.T) {
	router, _ := newTestRouter(t, newFakeBackend(), fullAccess)

	rr := doRequest(router, http.MethodPost, "/v1/permissions", `{"action":"view"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"module"`)

	rr = doRequest(router, http.MethodPost, "/v1/permissions", `{"module":"products","action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(router, http.MethodPost, "/v1/permissions", `{"module":"products","action":"read"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var p Permission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, ActionView, p.Action)
}

func TestCreateAndAssignPartialFailureQueuesRetry(t *testing.T) {
	backend := newFakeBackend()
	backend.assignErr = errBackendDown
	router, retry := newTestRouter(t, backend, fullAccess)

	rr := doRequest(router, http.MethodPost, "/v1/permissions/assign", `{"roleId":"r1","module":"billing","actions":["create","view"],"retry":true}`)
	require.Equal(t, http.StatusMultiStatus, rr.Code, rr.Body.String())

	var body createAndAssignResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, AssignmentPartiallySucceeded, body.Status)
	assert.True(t, body.RetryQueued)
	assert.Len(t, body.Created, 2)
	assert.Equal(t, shared.ID("r1"), retry.roleID)
	assert.Len(t, retry.ids, 2)
}

func TestCreateAndAssignSuccess(t *testing.T) {
	router, retry := newTestRouter(t, newFakeBackend(), fullAccess)
	rr := doRequest(router, http.MethodPost, "/v1/permissions/assign", `{"roleId":"r1","module":"billing","actions":["edit"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"succeeded"`)
	assert.True(t, retry.roleID.IsZero())
}

func TestRoleRoutes(t *testing.T) {
	router, _ := newTestRouter(t, newFakeBackend(), fullAccess)

	rr := doRequest(router, http.MethodGet, "/v1/permissions/roles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Sales Manager")

	rr = doRequest(router, http.MethodPost, "/v1/permissions/roles", `{"name":"Auditor"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Auditor")

	rr = doRequest(router, http.MethodPost, "/v1/permissions/roles", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetUpdateDeletePermission(t *testing.T) {
	backend := newFakeBackend(seedPermissions(2)...)
	router, _ := newTestRouter(t, backend, fullAccess)

	rr := doRequest(router, http.MethodGet, "/v1/permissions/p1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(router, http.MethodGet, "/v1/permissions/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(router, http.MethodPatch, "/v1/permissions/p1", `{"description":"Create things"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Create things")

	rr = doRequest(router, http.MethodDelete, "/v1/permissions/p2", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(router, http.MethodPost, "/v1/permissions/role-permissions", `{"roleId":"r1","permissionIds":["p1"]}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []shared.ID{"p1"}, backend.assigned["r1"])
}
