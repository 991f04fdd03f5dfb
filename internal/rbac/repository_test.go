package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// recordingAPI captures each request body keyed by path and replies with a
// canned response.
type recordingAPI struct {
	mu      sync.Mutex
	bodies  map[string]json.RawMessage
	replies map[string]string
}

func (a *recordingAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	a.mu.Lock()
	a.bodies[r.Method+" "+r.URL.Path] = body
	reply := a.replies[r.URL.Path]
	a.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(reply))
}

func (a *recordingAPI) body(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.bodies[key])
}

func newRecordingRepository(t *testing.T) (*Repository, *recordingAPI) {
	t.Helper()
	api := &recordingAPI{
		bodies: make(map[string]json.RawMessage),
		replies: map[string]string{
			permissionsPath:     `{"data":{"id":"p1","module":"billing","action":"view"}}`,
			bulkPath:            `[{"id":"p2","module":"billing","action":"create"},{"id":"p3","module":"billing","action":"edit"}]`,
			rolePermissionsPath: `{}`,
		},
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewRepository(backend.NewClient(backend.Options{BaseURL: srv.URL}), nil), api
}

func TestRepositoryCreatePermissionBody(t *testing.T) {
	repo, api := newRecordingRepository(t)

	created, err := repo.CreatePermission(context.Background(), "billing", ActionView, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"module":"billing","action":"view"}`, api.body("POST /permissions"))
	assert.Equal(t, shared.ID("p1"), created.ID)
	assert.Equal(t, ActionView, created.Action)

	_, err = repo.CreatePermission(context.Background(), "billing", ActionView, "Read invoices")
	require.NoError(t, err)
	assert.JSONEq(t, `{"module":"billing","action":"view","description":"Read invoices"}`, api.body("POST /permissions"))
}

func TestRepositoryBulkCreateBody(t *testing.T) {
	repo, api := newRecordingRepository(t)

	created, err := repo.BulkCreatePermissions(context.Background(), "billing", []Action{ActionCreate, ActionEdit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"module":"billing","actions":["create","edit"]}`, api.body("POST /permissions/bulk"))
	require.Len(t, created, 2)
	assert.Equal(t, ActionEdit, created[1].Action)
}

func TestRepositoryAssignBody(t *testing.T) {
	repo, api := newRecordingRepository(t)

	err := repo.AssignPermissionsToRole(context.Background(), "r1", []shared.ID{"p1", "p2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roleId":"r1","permissionIds":["p1","p2"]}`, api.body("POST /permissions/role-permissions"))
}
