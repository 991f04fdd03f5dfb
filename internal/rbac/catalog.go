package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	// DefaultPageSize is the page size used to materialize the catalog.
	DefaultPageSize = 100
	// DefaultMaxPages bounds pagination against a backend that never says stop.
	DefaultMaxPages = 50
)

// CatalogOptions tunes a Catalog.
type CatalogOptions struct {
	PageSize int
	MaxPages int
	Logger   *slog.Logger
	Metrics  *observability.CatalogMetrics
}

// Snapshot is an immutable, fully materialized catalog. Callers must not
// modify its slices.
type Snapshot struct {
	Permissions []Permission
	Generation  uint64
	LoadedAt    time.Time
	Truncated   bool
	byModule    map[string][]Permission
}

func newSnapshot(perms []Permission, generation uint64, truncated bool) *Snapshot {
	sorted := make([]Permission, len(perms))
	copy(sorted, perms)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ka, kb := ModuleKey(a.Module), ModuleKey(b.Module); ka != kb {
			return ka < kb
		}
		if ra, rb := a.Action.rank(), b.Action.rank(); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})
	byModule := make(map[string][]Permission)
	for _, p := range sorted {
		key := ModuleKey(p.Module)
		byModule[key] = append(byModule[key], p)
	}
	return &Snapshot{
		Permissions: sorted,
		Generation:  generation,
		LoadedAt:    time.Now().UTC(),
		Truncated:   truncated,
		byModule:    byModule,
	}
}

// Module returns the permissions of one module.
func (s *Snapshot) Module(module string) []Permission {
	if s == nil {
		return nil
	}
	return s.byModule[ModuleKey(module)]
}

// Modules returns the sorted module keys present in the snapshot.
func (s *Snapshot) Modules() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.byModule))
	for key := range s.byModule {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Find returns the permission with id.
func (s *Snapshot) Find(id shared.ID) (Permission, bool) {
	if s == nil {
		return Permission{}, false
	}
	for _, p := range s.Permissions {
		if p.ID == id {
			return p, true
		}
	}
	return Permission{}, false
}

// Catalog is the session owned index of every permission.
type Catalog struct {
	source   CatalogSource
	pageSize int
	maxPages int
	logger   *slog.Logger
	metrics  *observability.CatalogMetrics
	group    singleflight.Group
	snapshot atomic.Pointer[Snapshot]

	mu             sync.Mutex
	state          shared.LoadState
	lastErr        error
	epoch          uint64
	publishedEpoch uint64
	generation     uint64
	inflight       int
}

// NewCatalog builds an uninitialized Catalog.
func NewCatalog(source CatalogSource, opts CatalogOptions) *Catalog {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	return &Catalog{
		source:   source,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// LoadAll materializes every permission page. Concurrent callers within the
// same invalidation epoch share one network sequence. The shared load runs to
// completion even if ctx ends first; the caller then just gets ctx.Err().
//
// A *TruncatedError comes back with the partial set, which is published. Any
// other failure returns the last good snapshot's permissions (possibly none)
// and a *CatalogError, and leaves that snapshot in place.
func (c *Catalog) LoadAll(ctx context.Context) ([]Permission, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	key := "catalog:" + strconv.FormatUint(epoch, 10)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.load(context.WithoutCancel(ctx), epoch)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		perms, _ := res.Val.([]Permission)
		return clonePermissions(perms), res.Err
	}
}

func (c *Catalog) load(ctx context.Context, epoch uint64) ([]Permission, error) {
	c.mu.Lock()
	c.inflight++
	c.state = shared.StateLoading
	c.mu.Unlock()

	tracker := c.metrics.Track()
	perms, err := c.fetchAll(ctx, tracker)

	var truncated *TruncatedError
	if err != nil && !errors.As(err, &truncated) {
		tracker.End(observability.OutcomeFailure, 0)
		return c.fail(err, epoch), &CatalogError{Op: "load", Err: err}
	}

	snap := c.publish(perms, epoch, truncated != nil)
	if truncated != nil {
		tracker.End(observability.OutcomeTruncated, len(snap.Permissions))
		if c.logger != nil {
			c.logger.Warn("permission catalog truncated", slog.Int("pages", truncated.Pages), slog.Int("permissions", truncated.Loaded))
		}
		return snap.Permissions, err
	}
	tracker.End(observability.OutcomeSuccess, len(snap.Permissions))
	return snap.Permissions, nil
}

func (c *Catalog) fetchAll(ctx context.Context, tracker *observability.CatalogTracker) ([]Permission, error) {
	seen := make(map[shared.ID]struct{})
	var out []Permission
	for page := 1; page <= c.maxPages; page++ {
		raw, err := c.source.ListPermissions(ctx, PageRequest{Page: page, Limit: c.pageSize})
		if err != nil {
			return out, fmt.Errorf("page %d: %w", page, err)
		}
		tracker.Page()
		result, shapeErr := listing.Decode[Permission](raw)
		if shapeErr != nil && c.logger != nil {
			c.logger.Warn("permission page shape", slog.Int("page", page), slog.Any("error", shapeErr))
		}
		for _, p := range result.Items {
			if p.ID.IsZero() {
				continue
			}
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
		}
		if !result.HasNext || len(result.Items) == 0 {
			return out, nil
		}
	}
	return out, &TruncatedError{Pages: c.maxPages, Loaded: len(out)}
}

func (c *Catalog) publish(perms []Permission, epoch uint64, truncated bool) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	current := c.snapshot.Load()
	if current != nil && epoch < c.publishedEpoch {
		// A load started after a later invalidation already published.
		c.settleState()
		return current
	}
	c.generation++
	snap := newSnapshot(perms, c.generation, truncated)
	c.snapshot.Store(snap)
	c.publishedEpoch = epoch
	c.lastErr = nil
	c.state = shared.StateReady
	if c.inflight > 0 {
		c.state = shared.StateLoading
	}
	return snap
}

func (c *Catalog) fail(err error, epoch uint64) []Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	prev := c.snapshot.Load()
	if prev != nil && epoch < c.publishedEpoch {
		// A newer epoch already published; this failure is moot.
		c.settleState()
		return prev.Permissions
	}
	c.lastErr = err
	c.state = shared.StateError
	if c.inflight > 0 {
		c.state = shared.StateLoading
	}
	if c.logger != nil {
		cached := 0
		if prev != nil {
			cached = len(prev.Permissions)
		}
		c.logger.Warn("permission catalog load failed, keeping last snapshot", slog.Int("cached", cached), slog.Any("error", err))
	}
	if prev == nil {
		return nil
	}
	return prev.Permissions
}

func (c *Catalog) settleState() {
	switch {
	case c.inflight > 0:
		c.state = shared.StateLoading
	case c.lastErr != nil:
		c.state = shared.StateError
	default:
		c.state = shared.StateReady
	}
}

// Invalidate marks the current snapshot stale. The next EnsureLoaded or
// LoadAll starts a fresh network sequence instead of joining one already in
// flight.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
}

// Stale reports whether the snapshot predates the last invalidation.
func (c *Catalog) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Load() == nil || c.publishedEpoch != c.epoch
}

// EnsureLoaded loads the catalog when it has never been loaded or is stale.
// Truncation is not reported as an error here.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	if !c.Stale() {
		return nil
	}
	_, err := c.LoadAll(ctx)
	if IsTruncated(err) {
		return nil
	}
	return err
}

// Snapshot returns the current snapshot, nil before the first load.
func (c *Catalog) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Generation identifies the current snapshot; it grows with every publish.
// Call sites compare it to discard results computed from an older catalog.
func (c *Catalog) Generation() uint64 {
	if snap := c.snapshot.Load(); snap != nil {
		return snap.Generation
	}
	return 0
}

// State returns the lifecycle state.
func (c *Catalog) State() shared.LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the cause of the last failed load.
func (c *Catalog) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Get fetches one permission from the backend, answering from the snapshot
// when the backend cannot be reached.
func (c *Catalog) Get(ctx context.Context, id shared.ID) (Permission, error) {
	p, err := c.source.GetPermission(ctx, id)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, ErrNotFound) {
		return Permission{}, err
	}
	if cached, ok := c.Snapshot().Find(id); ok {
		if c.logger != nil {
			c.logger.Warn("permission get failed, serving snapshot", slog.String("id", id.String()), slog.Any("error", err))
		}
		return cached, nil
	}
	return Permission{}, &CatalogError{Op: "get", Err: err}
}

// Modules returns the union of the backend's module list and the modules
// present in the snapshot. A backend failure degrades to the snapshot only.
func (c *Catalog) Modules(ctx context.Context) []string {
	set := make(map[string]struct{})
	for _, m := range c.Snapshot().Modules() {
		set[m] = struct{}{}
	}
	remote, err := c.source.ListModules(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("modules list failed, using snapshot", slog.Any("error", err))
		}
	}
	for _, m := range remote {
		if key := ModuleKey(m); key != "" {
			set[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func clonePermissions(in []Permission) []Permission {
	if in == nil {
		return nil
	}
	out := make([]Permission, len(in))
	copy(out, in)
	return out
}
