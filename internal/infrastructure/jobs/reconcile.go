package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	appctx "larder/internal/core/context"
	"larder/internal/core/tenant"
	"larder/internal/domain/costing"
	"larder/pkg/logger"
)

// Reconciler is satisfied by *costing.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, scope tenant.Scope) (*costing.Report, error)
}

// ErrReconcileIncomplete asks asynq to retry a reconcile that left menu items behind.
var ErrReconcileIncomplete = errors.New("reconcile incomplete")

// ReconcileHandler processes TaskCostReconcile. A redis lock per location keeps two
// workers from reconciling the same location at once.
type ReconcileHandler struct {
	engine  Reconciler
	locker  *redislock.Client
	lockTTL time.Duration
}

// NewReconcileHandler creates the handler. locker may be nil on a single worker.
func NewReconcileHandler(engine Reconciler, locker *redislock.Client) *ReconcileHandler {
	return &ReconcileHandler{engine: engine, locker: locker, lockTTL: time.Minute}
}

// WithLockTTL sets how long a location lock is held before it expires.
func (h *ReconcileHandler) WithLockTTL(ttl time.Duration) *ReconcileHandler {
	if ttl > 0 {
		h.lockTTL = ttl
	}
	return h
}

// LockKey is the redis key guarding reconciles of one location.
func LockKey(tenantID, locationID string) string {
	return fmt.Sprintf("larder:lock:reconcile:%s:%s", tenantID, locationID)
}

// ProcessTask implements asynq.Handler.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	scope := tenant.Scope{TenantID: p.TenantID, LocationID: p.LocationID}
	if !scope.Valid() {
		return fmt.Errorf("reconcile payload without scope: %w", asynq.SkipRetry)
	}
	ctx = tenant.WithTenantID(ctx, p.TenantID)
	taskID, _ := asynq.GetTaskID(ctx)
	ctx, _ = appctx.StartTrace(ctx, taskID)

	if h.locker != nil {
		lock, err := h.locker.Obtain(ctx, LockKey(p.TenantID, p.LocationID), h.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			// another worker is on it; retry later in case it started before our version
			return fmt.Errorf("location %s busy: %w", scope, err)
		}
		if err != nil {
			return fmt.Errorf("obtain reconcile lock: %w", err)
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	report, err := h.engine.Reconcile(ctx, scope)
	if err != nil {
		return err
	}
	logger.Info(ctx, "reconcile finished",
		"location_id", p.LocationID,
		"cost_version", p.CostVersion,
		"updated", len(report.Updated),
		"skipped", len(report.Skipped),
		"synced_cost_version", report.SyncedCostVersion,
	)
	if !report.Complete() {
		return ErrReconcileIncomplete
	}
	return nil
}
