package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// PermissionAssigner is the backend call the retry replays.
type PermissionAssigner interface {
	AssignPermissionsToRole(ctx context.Context, roleID shared.ID, permissionIDs []shared.ID) error
}

// AssignRetryJob replays the role-permissions write of a partially failed
// create-and-assign and announces the change to every console session.
type AssignRetryJob struct {
	Backend  PermissionAssigner
	Notifier rbac.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAssignRetryJob wires dependencies for the retry handler.
func NewAssignRetryJob(assigner PermissionAssigner, notifier rbac.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *AssignRetryJob {
	return &AssignRetryJob{Backend: assigner, Notifier: notifier, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAssignPermissions tasks.
func (j *AssignRetryJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Backend == nil {
		return errors.New("assign retry: handler not configured")
	}
	var payload AssignPermissionsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("assign retry: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RoleID.IsZero() || len(payload.PermissionIDs) == 0 {
		return fmt.Errorf("assign retry: empty role or permissions: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAssignPermissions)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("role_id", payload.RoleID.String()), slog.Int("permissions", len(payload.PermissionIDs)))
	if err := j.Backend.AssignPermissionsToRole(ctx, payload.RoleID, payload.PermissionIDs); err != nil {
		if permanent(err) {
			logger.Error("assign retry rejected", slog.Any("error", err))
			return fmt.Errorf("assign retry: %v: %w", err, asynq.SkipRetry)
		}
		logger.Warn("assign retry failed", slog.Any("error", err))
		return err
	}
	if j.Notifier != nil {
		if err := j.Notifier.Publish(ctx, OriginWorker); err != nil {
			logger.Warn("catalog bump failed", slog.Any("error", err))
		}
	}
	logger.Info("assign retry completed")
	return nil
}

func (j *AssignRetryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// permanent reports backend rejections that a retry cannot fix.
func permanent(err error) bool {
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 &&
		apiErr.Status != http.StatusTooManyRequests && apiErr.Status != http.StatusRequestTimeout
}
