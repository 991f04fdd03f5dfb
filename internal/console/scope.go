// Package console owns the per-session access scopes of the admin console.
//
// A Scope holds everything one signed in identity needs: its permission
// catalog, role registry, write services and the capability evaluator derived
// from them. Scopes never share state with each other; the Manager only routes
// invalidations between them.
package console

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// Identity is the signed in console user.
type Identity struct {
	UserID              shared.ID         `json:"userId"`
	Role                roles.RoleCode    `json:"role"`
	PermissionsRoleID   shared.ID         `json:"permissionsRoleId,omitempty"`
	PermissionsRoleName string            `json:"permissionsRoleName,omitempty"`
	Direct              []rbac.Permission `json:"permissions,omitempty"`
	Token               string            `json:"-"`
}

// Scope is the access core of one session.
type Scope struct {
	id          string
	identity    Identity
	catalog     *rbac.Catalog
	registry    *roles.Registry
	assignments *rbac.AssignmentService
	users       *users.Service
	logger      *slog.Logger

	lastSeen atomic.Int64

	mu      sync.Mutex
	evalGen uint64
	eval    rbac.Evaluator
}

// ID is the session id.
func (s *Scope) ID() string { return s.id }

// Identity returns the signed in identity.
func (s *Scope) Identity() Identity { return s.identity }

func (s *Scope) Catalog() *rbac.Catalog               { return s.catalog }
func (s *Scope) Roles() *roles.Registry               { return s.registry }
func (s *Scope) Assignments() *rbac.AssignmentService { return s.assignments }
func (s *Scope) Users() *users.Service                { return s.users }

// Evaluator answers capability checks for the identity. It is rebuilt when the
// catalog publishes a new generation and denies everything before the first
// load.
func (s *Scope) Evaluator() rbac.Evaluator {
	snap := s.catalog.Snapshot()
	if snap == nil {
		return rbac.Evaluator{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eval.Loaded() && s.evalGen == snap.Generation {
		return s.eval
	}
	set := rbac.ResolveCapabilities(snap.Permissions, s.identity.PermissionsRoleID, s.identity.Direct)
	s.eval = rbac.NewEvaluator(set)
	s.evalGen = snap.Generation
	return s.eval
}

// Warm loads the catalog and the roles concurrently.
func (s *Scope) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.catalog.EnsureLoaded(ctx) })
	g.Go(func() error { return s.registry.EnsureLoaded(ctx) })
	return g.Wait()
}

// Refresh loads the catalog when it is missing or was invalidated. Failures
// keep the previous snapshot and are only logged.
func (s *Scope) Refresh(ctx context.Context) {
	if !s.catalog.Stale() {
		return
	}
	if err := s.catalog.EnsureLoaded(ctx); err != nil && s.logger != nil {
		s.logger.Warn("catalog refresh failed, keeping last snapshot", slog.String("session_id", s.id), slog.Any("error", err))
	}
}

// RoleLabel is the display name of the identity's role in this session.
func (s *Scope) RoleLabel() string {
	return s.registry.DisplayName(s.identity.Role)
}

func (s *Scope) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Scope) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}
