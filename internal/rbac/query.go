package rbac

import (
	"strings"

	"github.com/odyssey-erp/backoffice/internal/listing"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// MaxQueryLimit caps local page sizes.
const MaxQueryLimit = 100

// PermissionQuery filters and pages the materialized catalog.
type PermissionQuery struct {
	Search string
	Module string
	Action Action
	RoleID shared.ID
	Page   int
	Limit  int
}

// Query answers list screens from the snapshot. Filtering and paging happen
// locally because the backend's own filters are not reliable.
func (c *Catalog) Query(q PermissionQuery) listing.Page[Permission] {
	return QueryPermissions(c.Snapshot(), q)
}

// QueryPermissions filters and pages a snapshot; a nil snapshot yields an
// empty page.
func QueryPermissions(snap *Snapshot, q PermissionQuery) listing.Page[Permission] {
	limit := q.Limit
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	if snap == nil {
		return listing.Paginate([]Permission{}, q.Page, limit)
	}
	source := snap.Permissions
	if q.Module != "" {
		source = snap.Module(q.Module)
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]Permission, 0, len(source))
	for _, p := range source {
		if q.Action != "" && p.Action != q.Action {
			continue
		}
		if !q.RoleID.IsZero() && !p.AssignedTo(q.RoleID) {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		matched = append(matched, p)
	}
	return listing.Paginate(matched, q.Page, limit)
}

func matchesSearch(p Permission, needle string) bool {
	for _, field := range []string{p.Module, string(p.Action), p.Description} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
