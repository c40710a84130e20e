package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"larder/internal/core/tenant"
	"larder/internal/domain/costing"
	"larder/internal/domain/ledger"
	"larder/pkg/logger"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueDispatcher hands cost changes to the worker fleet instead of reconciling in-process.
type QueueDispatcher struct {
	client Enqueuer
}

// NewQueueDispatcher creates a dispatcher on top of an asynq client.
func NewQueueDispatcher(client Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

var _ costing.Dispatcher = (*QueueDispatcher)(nil)

// Dispatch enqueues one reconcile for the highest cost version among changes.
// A task for that version already queued counts as success.
func (d *QueueDispatcher) Dispatch(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) error {
	if len(changes) == 0 {
		return nil
	}
	var version int64
	for _, c := range changes {
		if c.CostVersion > version {
			version = c.CostVersion
		}
	}

	payload := ReconcilePayload{TenantID: scope.TenantID, LocationID: scope.LocationID, CostVersion: version}
	task, err := NewReconcileTask(payload)
	if err != nil {
		return fmt.Errorf("build reconcile task: %w", err)
	}

	info, err := d.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logger.Debug(ctx, "reconcile already queued", "task_id", payload.TaskID())
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	logger.Info(ctx, "reconcile enqueued",
		"task_id", info.ID,
		"queue", info.Queue,
		"location_id", scope.LocationID,
		"cost_version", version,
	)
	return nil
}
