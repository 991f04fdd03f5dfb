package rbac

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", shared.ErrNotFound)
	// ErrInvalidAction rejects verbs outside the fixed action set.
	ErrInvalidAction = fmt.Errorf("rbac: invalid action: %w", shared.ErrValidation)
	// ErrModuleRequired rejects permissions without a module.
	ErrModuleRequired = fmt.Errorf("rbac: module required: %w", shared.ErrValidation)
	// ErrNoActions rejects bulk creation without actions.
	ErrNoActions = fmt.Errorf("rbac: at least one action required: %w", shared.ErrValidation)
	// ErrRoleRequired rejects assignments without a role.
	ErrRoleRequired = fmt.Errorf("rbac: role id required: %w", shared.ErrValidation)
	// ErrNoPermissions rejects assignments without permission ids.
	ErrNoPermissions = fmt.Errorf("rbac: at least one permission id required: %w", shared.ErrValidation)
)

// CatalogError is a failed catalog read. The catalog keeps serving its last
// good snapshot after one.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("rbac: catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// TruncatedError reports that pagination hit the page cap. The permissions
// returned alongside it are the partial set; this is a warning, not a failure.
type TruncatedError struct {
	Pages  int
	Loaded int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("rbac: catalog truncated after %d pages (%d permissions loaded)", e.Pages, e.Loaded)
}

// IsTruncated reports whether err carries a *TruncatedError.
func IsTruncated(err error) bool {
	var truncated *TruncatedError
	return errors.As(err, &truncated)
}

// AssignmentPartialFailure reports that permissions were created but could not
// be attached to the role. The created permissions persist unassigned.
type AssignmentPartialFailure struct {
	RoleID  shared.ID
	Created []Permission
	Err     error
}

func (e *AssignmentPartialFailure) Error() string {
	return fmt.Sprintf("rbac: created %d permissions but assigning them to role %s failed: %v", len(e.Created), e.RoleID, e.Err)
}

func (e *AssignmentPartialFailure) Unwrap() error { return e.Err }

// CreatedIDs returns the ids of the orphaned permissions, ready for a retry
// of the assignment step.
func (e *AssignmentPartialFailure) CreatedIDs() []shared.ID {
	ids := make([]shared.ID, 0, len(e.Created))
	for _, p := range e.Created {
		ids = append(ids, p.ID)
	}
	return ids
}
