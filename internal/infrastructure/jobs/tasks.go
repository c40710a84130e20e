// Package jobs runs cost propagation and notification fan-out on asynq workers.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueCosting carries cost reconcile tasks.
	QueueCosting = "costing"
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskCostReconcile reconciles menu costs of one location.
	TaskCostReconcile = "costing:reconcile"
)

// ReconcilePayload identifies the location whose menu costs must catch up.
type ReconcilePayload struct {
	TenantID    string `json:"tenantId"`
	LocationID  string `json:"locationId"`
	CostVersion int64  `json:"costVersion"`
}

// TaskID deduplicates reconcile tasks: one per location and cost version.
func (p ReconcilePayload) TaskID() string {
	return fmt.Sprintf("reconcile:%s:%s:%d", p.TenantID, p.LocationID, p.CostVersion)
}

// NewReconcileTask constructs an asynq task for the payload.
func NewReconcileTask(p ReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCostReconcile, data,
		asynq.Queue(QueueCosting),
		asynq.TaskID(p.TaskID()),
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(time.Hour),
	), nil
}
