package costing

import (
	"context"

	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
	"larder/pkg/logger"
)

// Dispatcher hands committed cost changes to propagation.
type Dispatcher interface {
	Dispatch(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) error
}

// InlineDispatcher reconciles the location in-process.
// With Async set the caller does not wait; errors are only logged.
type InlineDispatcher struct {
	Engine *Engine
	Async  bool
}

var _ Dispatcher = (*InlineDispatcher)(nil)

// Dispatch runs a reconcile of scope, which covers changes and anything left from earlier runs.
func (d *InlineDispatcher) Dispatch(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) error {
	if len(changes) == 0 {
		return nil
	}
	if !d.Async {
		_, err := d.Engine.Reconcile(ctx, scope)
		return err
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		if _, err := d.Engine.Reconcile(ctx, scope); err != nil {
			logger.Error(ctx, "background cost reconcile failed", "location_id", scope.LocationID, "error", err)
		}
	}()
	return nil
}
