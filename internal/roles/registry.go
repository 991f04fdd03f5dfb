package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var (
	// ErrNameRequired is returned when creating a role without a name.
	ErrNameRequired = fmt.Errorf("roles: role name required: %w", shared.ErrValidation)
	// ErrNotFound indicates the role is unknown to the backend.
	ErrNotFound = fmt.Errorf("roles: %w", shared.ErrNotFound)
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
}

// Registry caches the roles visible to one session.
type Registry struct {
	repo   RepositoryPort
	logger *slog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	roles   []Role
	state   shared.LoadState
	lastErr error
}

// NewRegistry builds a Registry.
func NewRegistry(repo RepositoryPort, logger *slog.Logger) *Registry {
	return &Registry{repo: repo, logger: logger}
}

// Load fetches all roles and replaces the cache. Concurrent callers share one
// request. On failure the previous list stays in place and is returned along
// with the error.
func (r *Registry) Load(ctx context.Context) ([]Role, error) {
	ch := r.group.DoChan("roles", func() (interface{}, error) {
		return r.load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		roles, _ := res.Val.([]Role)
		return cloneRoles(roles), res.Err
	}
}

func (r *Registry) load(ctx context.Context) ([]Role, error) {
	r.mu.Lock()
	r.state = shared.StateLoading
	r.mu.Unlock()

	fetched, err := r.repo.ListRoles(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = shared.StateError
		r.lastErr = err
		if r.logger != nil {
			r.logger.Warn("roles load failed, keeping cached roles", slog.Int("cached", len(r.roles)), slog.Any("error", err))
		}
		return r.roles, fmt.Errorf("roles: load: %w", err)
	}
	r.roles = dedupRoles(fetched)
	r.state = shared.StateReady
	r.lastErr = nil
	return r.roles, nil
}

// EnsureLoaded loads the roles unless they are already cached.
func (r *Registry) EnsureLoaded(ctx context.Context) error {
	if r.State() == shared.StateReady {
		return nil
	}
	_, err := r.Load(ctx)
	return err
}

// Create adds a role on the backend and to the cache.
func (r *Registry) Create(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrNameRequired
	}
	role, err := r.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	r.mu.Lock()
	next := make([]Role, 0, len(r.roles)+1)
	next = append(next, r.roles...)
	r.roles = dedupRoles(append(next, role))
	r.mu.Unlock()
	return role, nil
}

// Roles returns a copy of the cached roles.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRoles(r.roles)
}

// Find returns the cached role with id.
func (r *Registry) Find(id shared.ID) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, role := range r.roles {
		if role.ID == id {
			return role, true
		}
	}
	return Role{}, false
}

// Lookup returns the role with id, loading the cache once if it is missing.
func (r *Registry) Lookup(ctx context.Context, id shared.ID) (Role, error) {
	if role, ok := r.Find(id); ok {
		return role, nil
	}
	_, err := r.Load(ctx)
	if role, ok := r.Find(id); ok {
		return role, nil
	}
	if err != nil {
		return Role{}, err
	}
	return Role{}, fmt.Errorf("role %s: %w", id, ErrNotFound)
}

// DisplayName is the label to show for code in this session.
func (r *Registry) DisplayName(code RoleCode) string {
	return Denormalize(code, r.Roles())
}

// State returns the cache lifecycle state.
func (r *Registry) State() shared.LoadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastError returns the error of the last failed load, if any.
func (r *Registry) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func dedupRoles(in []Role) []Role {
	seen := make(map[shared.ID]struct{}, len(in))
	out := make([]Role, 0, len(in))
	for _, role := range in {
		if _, ok := seen[role.ID]; ok {
			continue
		}
		seen[role.ID] = struct{}{}
		out = append(out, role)
	}
	return out
}

func cloneRoles(in []Role) []Role {
	if in == nil {
		return nil
	}
	out := make([]Role, len(in))
	copy(out, in)
	return out
}
