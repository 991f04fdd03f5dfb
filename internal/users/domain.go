package users

import (
	"github.com/odyssey-erp/backoffice/internal/roles"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// User is an identity as the external identity store reports it.
type User struct {
	ID                  shared.ID      `json:"id"`
	Email               string         `json:"email,omitempty"`
	Name                string         `json:"name,omitempty"`
	Role                roles.RoleCode `json:"role,omitempty"`
	PermissionsRoleID   shared.ID      `json:"permissionsRoleId,omitempty"`
	PermissionsRoleName string         `json:"permissionsRoleName,omitempty"`
}

// RoleAssignment is the body of an identity role update. Role is the coarse
// code; the permissions role fields point at the fine grained role.
type RoleAssignment struct {
	Role                roles.RoleCode `json:"role"`
	PermissionsRoleID   shared.ID      `json:"permissionsRoleId"`
	PermissionsRoleName string         `json:"permissionsRoleName"`
}
