package roles

import "github.com/odyssey-erp/backoffice/internal/shared"

// Role is an administrator defined group of permissions.
type Role struct {
	ID          shared.ID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

// RoleCode is one of the fixed coarse grained codes used for routing and
// visibility decisions.
type RoleCode string

const (
	SuperAdmin   RoleCode = "SUPER_ADMIN"
	SalesManager RoleCode = "SALES_MANAGER"
	SalesMan     RoleCode = "SALES_MAN"
)

// Codes lists every RoleCode from most to least privileged.
var Codes = []RoleCode{SuperAdmin, SalesManager, SalesMan}

// Valid reports whether c is one of the fixed codes.
func (c RoleCode) Valid() bool {
	switch c {
	case SuperAdmin, SalesManager, SalesMan:
		return true
	}
	return false
}

func (c RoleCode) String() string { return string(c) }
