package console

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// DefaultIdleTTL ends sessions nobody touched for this long.
const DefaultIdleTTL = 30 * time.Minute

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Client is the base backend client; scopes derive one per identity token.
	Client   *backend.Client
	Notifier rbac.Notifier
	Metrics  *observability.CatalogMetrics
	PageSize int
	MaxPages int
	IdleTTL  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Manager tracks the open scopes of this gateway.
type Manager struct {
	opts ManagerOptions

	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewManager builds a Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, scopes: make(map[string]*Scope)}
}

// Open creates the scope for a freshly signed in identity. Nothing is loaded
// until Warm or the first request.
func (m *Manager) Open(identity Identity) *Scope {
	id := uuid.NewString()
	logger := m.opts.Logger
	if logger != nil {
		logger = logger.With(slog.String("session_id", id))
	}
	client := m.opts.Client.WithToken(identity.Token)

	repo := rbac.NewRepository(client, logger)
	catalog := rbac.NewCatalog(repo, rbac.CatalogOptions{
		PageSize: m.opts.PageSize,
		MaxPages: m.opts.MaxPages,
		Logger:   logger,
		Metrics:  m.opts.Metrics,
	})
	registry := roles.NewRegistry(roles.NewRepository(client, logger), logger)
	scope := &Scope{
		id:       id,
		identity: identity,
		catalog:  catalog,
		registry: registry,
		assignments: rbac.NewAssignmentService(rbac.AssignmentOptions{
			Backend:  repo,
			Catalog:  catalog,
			Roles:    registry,
			Notifier: m.opts.Notifier,
			Origin:   id,
			Logger:   logger,
		}),
		users:  users.NewService(users.NewRepository(client), registry, logger),
		logger: logger,
	}
	scope.touch(m.opts.Now())

	m.mu.Lock()
	m.scopes[id] = scope
	m.mu.Unlock()
	if logger != nil {
		logger.Info("session opened", slog.String("user_id", identity.UserID.String()), slog.String("role", identity.Role.String()))
	}
	return scope
}

// Get returns the scope for id and marks it as used.
func (m *Manager) Get(id string) (*Scope, bool) {
	m.mu.RLock()
	scope, ok := m.scopes[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := m.opts.Now()
	if scope.idleSince(now) > m.opts.IdleTTL {
		m.End(id)
		return nil, false
	}
	scope.touch(now)
	return scope, true
}

// End drops the scope for id.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	_, ok := m.scopes[id]
	delete(m.scopes, id)
	m.mu.Unlock()
	if ok && m.opts.Logger != nil {
		m.opts.Logger.Info("session ended", slog.String("session_id", id))
	}
	return ok
}

// Len reports the number of open scopes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scopes)
}

// Invalidate marks the catalog of every scope except origin as stale. Each
// scope reloads on its next request.
func (m *Manager) Invalidate(origin string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for id, scope := range m.scopes {
		if id == origin {
			continue
		}
		scope.catalog.Invalidate()
		n++
	}
	return n
}

// HandleBump applies a catalog invalidation received from the notifier.
func (m *Manager) HandleBump(b rbac.Bump) {
	n := m.Invalidate(b.Origin)
	if m.opts.Logger != nil {
		m.opts.Logger.Debug("catalog invalidated", slog.Int64("version", b.Version), slog.String("origin", b.Origin), slog.Int("sessions", n))
	}
}

// Sweep ends every scope idle for longer than the TTL.
func (m *Manager) Sweep() int {
	now := m.opts.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, scope := range m.scopes {
		if scope.idleSince(now) > m.opts.IdleTTL {
			delete(m.scopes, id)
			n++
		}
	}
	return n
}

// Run sweeps idle scopes until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 && m.opts.Logger != nil {
				m.opts.Logger.Info("idle sessions swept", slog.Int("count", n))
			}
		}
	}
}
