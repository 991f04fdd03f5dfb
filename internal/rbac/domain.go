package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Action is a verb performable within a module.
type Action string

const (
	ActionCreate Action = "create"
	ActionView   Action = "view"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Actions lists every action in display order.
var Actions = []Action{ActionCreate, ActionView, ActionEdit, ActionDelete}

// Modules gated by the gateway itself.
const (
	ModulePermissions = "permissions"
	ModuleEmployees   = "employees"
)

// ParseAction accepts the canonical verbs case-insensitively, plus read and
// update as aliases of view and edit.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "create":
		return ActionCreate, nil
	case "view", "read":
		return ActionView, nil
	case "edit", "update":
		return ActionEdit, nil
	case "delete":
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
}

// Valid reports whether a is one of the fixed actions.
func (a Action) Valid() bool {
	return a.rank() >= 0
}

func (a Action) rank() int {
	for i, candidate := range Actions {
		if candidate == a {
			return i
		}
	}
	return -1
}

// ModuleKey is the normalized form modules are indexed and compared by.
func ModuleKey(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

// Permission is a persisted (module, action) pair.
type Permission struct {
	ID          shared.ID   `json:"id"`
	Module      string      `json:"module"`
	Action      Action      `json:"action"`
	Description string      `json:"description,omitempty"`
	RoleIDs     []shared.ID `json:"roleIds,omitempty"`
	CreatedAt   *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time  `json:"updatedAt,omitempty"`
}

// AssignedTo reports whether the permission is attached to roleID.
func (p Permission) AssignedTo(roleID shared.ID) bool {
	for _, id := range p.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

type roleRef struct {
	ID     shared.ID `json:"id"`
	RoleID shared.ID `json:"roleId"`
}

type permissionWire struct {
	ID              shared.ID   `json:"id"`
	Module          string      `json:"module"`
	Action          string      `json:"action"`
	Description     *string     `json:"description"`
	RoleIDs         []shared.ID `json:"roleIds"`
	Roles           []roleRef   `json:"roles"`
	RolePermissions []roleRef   `json:"rolePermissions"`
	CreatedAt       string      `json:"createdAt"`
	UpdatedAt       string      `json:"updatedAt"`
}

// UnmarshalJSON reads the backend representation. Role links may arrive as
// roleIds, roles[].id or rolePermissions[].roleId; unparseable timestamps are
// dropped rather than failing the whole page.
func (p *Permission) UnmarshalJSON(b []byte) error {
	var w permissionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	action, err := ParseAction(w.Action)
	if err != nil {
		action = Action(strings.ToLower(strings.TrimSpace(w.Action)))
	}
	*p = Permission{
		ID:        w.ID,
		Module:    strings.TrimSpace(w.Module),
		Action:    action,
		CreatedAt: parseTime(w.CreatedAt),
		UpdatedAt: parseTime(w.UpdatedAt),
	}
	if w.Description != nil {
		p.Description = *w.Description
	}
	roleIDs := append([]shared.ID(nil), w.RoleIDs...)
	for _, ref := range append(w.Roles, w.RolePermissions...) {
		if !ref.RoleID.IsZero() {
			roleIDs = append(roleIDs, ref.RoleID)
		} else if !ref.ID.IsZero() {
			roleIDs = append(roleIDs, ref.ID)
		}
	}
	p.RoleIDs = uniqueIDs(roleIDs)
	return nil
}

func parseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func uniqueIDs(ids []shared.ID) []shared.ID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[shared.ID]struct{}, len(ids))
	out := make([]shared.ID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// PermissionPatch carries the mutable fields of a permission.
type PermissionPatch struct {
	Module      *string `json:"module,omitempty"`
	Action      *Action `json:"action,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PageRequest is a list query against the backend.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
	Module string
	Action Action
}
