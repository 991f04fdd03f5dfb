package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory permissions backend paging like the real one.
type fakeBackend struct {
	mu        sync.Mutex
	perms     []Permission
	nextID    int
	modules   []string
	pageCalls int

	// pageFn overrides the paging response when set.
	pageFn func(req PageRequest) (json.RawMessage, error)
	// gate blocks ListPermissions until closed; started is signalled first.
	gate    chan struct{}
	started chan struct{}

	listErr    error
	getErr     error
	modulesErr error
	createErr  error
	assignErr  error
	assigned   map[shared.ID][]shared.ID
}

func newFakeBackend(perms ...Permission) *fakeBackend {
	return &fakeBackend{perms: perms, nextID: len(perms) + 1, assigned: make(map[shared.ID][]shared.ID)}
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

func (f *fakeBackend) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) ListPermissions(ctx context.Context, req PageRequest) (json.RawMessage, error) {
	f.mu.Lock()
	f.pageCalls++
	gate, started := f.gate, f.started
	f.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.pageFn != nil {
		return f.pageFn(req)
	}
	total := len(f.perms)
	start := (req.Page - 1) * req.Limit
	end := start + req.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	totalPages := (total + req.Limit - 1) / req.Limit
	return json.Marshal(map[string]any{
		"data": f.perms[start:end],
		"meta": map[string]any{"total": total, "page": req.Page, "limit": req.Limit, "totalPages": totalPages},
	})
}

func (f *fakeBackend) GetPermission(ctx context.Context, id shared.ID) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Permission{}, f.getErr
	}
	for _, p := range f.perms {
		if p.ID == id {
			return p, nil
		}
	}
	return Permission{}, ErrNotFound
}

func (f *fakeBackend) ListModules(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modules, f.modulesErr
}

func (f *fakeBackend) CreatePermission(ctx context.Context, module string, action Action, description string) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return Permission{}, f.createErr
	}
	return f.insert(module, action, description), nil
}

func (f *fakeBackend) BulkCreatePermissions(ctx context.Context, module string, actions []Action) ([]Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, f.insert(module, a, ""))
	}
	return out, nil
}

func (f *fakeBackend) insert(module string, action Action, description string) Permission {
	p := Permission{ID: shared.ID(fmt.Sprintf("p%d", f.nextID)), Module: module, Action: action, Description: description}
	f.nextID++
	f.perms = append(f.perms, p)
	return p
}

func (f *fakeBackend) UpdatePermission(ctx context.Context, id shared.ID, patch PermissionPatch) (Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.perms {
		if p.ID != id {
			continue
		}
		if patch.Module != nil {
			p.Module = *patch.Module
		}
		if patch.Action != nil {
			p.Action = *patch.Action
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		f.perms[i] = p
		return p, nil
	}
	return Permission{}, ErrNotFound
}

func (f *fakeBackend) DeletePermission(ctx context.Context, id shared.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.perms {
		if p.ID == id {
			f.perms = append(f.perms[:i], f.perms[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeBackend) AssignPermissionsToRole(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned[roleID] = append(f.assigned[roleID], permissionIDs...)
	for i, p := range f.perms {
		for _, id := range permissionIDs {
			if p.ID == id && !p.AssignedTo(roleID) {
				f.perms[i].RoleIDs = append(append([]shared.ID(nil), p.RoleIDs...), roleID)
			}
		}
	}
	return nil
}

func seedPermissions(n int) []Permission {
	out := make([]Permission, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Permission{
			ID:     shared.ID(fmt.Sprintf("p%d", i)),
			Module: fmt.Sprintf("module%03d", (i-1)/4),
			Action: Actions[(i-1)%4],
		})
	}
	return out
}
