package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssignPermissions retries attaching permissions to a role after a
	// partially failed create-and-assign.
	TaskAssignPermissions = "rbac:assign_permissions"
	// OriginWorker tags catalog bumps published by the worker.
	OriginWorker = "worker"
)

// AssignPermissionsPayload describes one pending role assignment.
type AssignPermissionsPayload struct {
	RoleID        shared.ID   `json:"roleId"`
	PermissionIDs []shared.ID `json:"permissionIds"`
}

// NewAssignPermissionsTask constructs an Asynq task.
func NewAssignPermissionsTask(payload AssignPermissionsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignPermissions, data), nil
}
