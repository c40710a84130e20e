// Package costing keeps menu item costs in line with the ingredient costs of their location.
package costing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/internal/domain/recipe"
	"larder/pkg/logger"
)

var tracer = otel.Tracer("larder/costing")

// Skip reasons of a menu item that was not updated.
const (
	// SkipUnresolved is permanent: the recipe points at something that does not exist.
	SkipUnresolved = "unresolved_ingredient"
	// SkipWriteFailed is transient: a later reconcile picks the menu item up again.
	SkipWriteFailed = "write_failed"
	SkipIsolation   = "branch_isolation"
)

// MenuCostUpdate is one rewritten menu item.
type MenuCostUpdate struct {
	MenuItemID    string      `json:"menuItemId"`
	PreviousTotal types.Money `json:"previousTotal"`
	NewTotal      types.Money `json:"newTotal"`
}

// SkippedMenuItem is a menu item propagation left alone.
type SkippedMenuItem struct {
	MenuItemID string `json:"menuItemId"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

// Report summarizes a propagation run.
type Report struct {
	LocationID string            `json:"locationId"`
	Updated    []MenuCostUpdate  `json:"updated"`
	Unchanged  int               `json:"unchanged"`
	Skipped    []SkippedMenuItem `json:"skipped,omitempty"`
	// SyncedCostVersion is set by Reconcile when the watermark moved.
	SyncedCostVersion int64 `json:"syncedCostVersion,omitempty"`
}

// Complete reports whether no menu item was left behind by a transient failure.
func (r *Report) Complete() bool {
	return r.transientFailures() == 0
}

func (r *Report) transientFailures() int {
	n := 0
	for _, s := range r.Skipped {
		if s.Reason == SkipWriteFailed {
			n++
		}
	}
	return n
}

// Engine recalculates menu item costs.
type Engine struct {
	store       *ledger.Store
	recipes     recipe.Repository
	txm         tx.Manager
	cache       CostCache
	maxAttempts int
	now         func() time.Time

	group singleflight.Group
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCache enables caching of on-demand menu costs.
func WithCache(c CostCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithMaxAttempts bounds retries of each menu item write.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// NewEngine creates a cost propagation engine.
func NewEngine(store *ledger.Store, recipes recipe.Repository, txm tx.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		recipes:     recipes,
		txm:         txm,
		maxAttempts: tx.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Propagate rewrites the ingredient costs of every menu item of the scope that uses a
// changed item. Only the changed ingredients take the new cost; the others keep what is
// stored. Each menu item commits on its own, so one failure skips only that menu item.
func (e *Engine) Propagate(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) (*Report, error) {
	if !scope.Valid() {
		return nil, apperror.NewMissingLocation("cost_change", scope.TenantID)
	}
	report := &Report{LocationID: scope.LocationID}
	if len(changes) == 0 {
		return report, nil
	}

	ctx, span := tracer.Start(ctx, "costing.Propagate", trace.WithAttributes(
		attribute.String("location_id", scope.LocationID),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	changed := make(map[string]ledger.CostChange, len(changes))
	for _, c := range changes {
		if c.LocationID != "" && c.LocationID != scope.LocationID {
			return nil, apperror.NewBranchIsolation("cost_change", c.ItemID, scope.LocationID, c.LocationID)
		}
		prev, ok := changed[c.ItemID]
		if !ok || c.CostVersion >= prev.CostVersion {
			changed[c.ItemID] = c
		}
	}
	itemIDs := make([]string, 0, len(changed))
	for itemID := range changed {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Strings(itemIDs)

	menus, err := e.recipes.ListMenuItemsByIngredients(ctx, scope, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("list affected menu items: %w", err)
	}
	sort.Slice(menus, func(i, j int) bool { return menus[i].MenuItemID < menus[j].MenuItemID })

	for _, menu := range menus {
		if err := branch.AssertLocation(menu, scope.LocationID); err != nil {
			report.skip(ctx, menu.MenuItemID, SkipIsolation, err)
			continue
		}

		update, err := e.rewriteMenu(ctx, scope, menu.MenuItemID, func(m *recipe.MenuItem) (bool, error) {
			return applyChanges(m, changed, e.store.Epsilon())
		})
		switch {
		case err == nil && update != nil:
			report.Updated = append(report.Updated, *update)
		case err == nil:
			report.Unchanged++
		case apperror.IsCode(err, errUnresolvedCode):
			report.skip(ctx, menu.MenuItemID, SkipUnresolved, err)
		default:
			report.skip(ctx, menu.MenuItemID, SkipWriteFailed, err)
		}
	}

	propagatedTotal.WithLabelValues("updated").Add(float64(len(report.Updated)))
	propagatedTotal.WithLabelValues("unchanged").Add(float64(report.Unchanged))
	propagatedTotal.WithLabelValues("skipped").Add(float64(len(report.Skipped)))
	logger.Info(ctx, "menu costs propagated",
		"location_id", scope.LocationID,
		"changed_items", len(itemIDs),
		"updated", len(report.Updated),
		"unchanged", report.Unchanged,
		"skipped", len(report.Skipped),
	)
	return report, nil
}

// Reconcile propagates every cost change the location recorded since its last sync and
// then advances the sync watermark. Safe to run repeatedly and concurrently.
func (e *Engine) Reconcile(ctx context.Context, scope tenant.Scope) (*Report, error) {
	lv, err := e.store.LocationVersion(ctx, scope)
	if err != nil {
		return nil, err
	}
	if lv.CostsSynchronized() {
		return &Report{LocationID: scope.LocationID, SyncedCostVersion: lv.SyncedCostVersion}, nil
	}

	synced := lv.SyncedCostVersion
	items, err := e.store.Items(ctx, scope, ledger.ItemFilter{CostVersionAbove: &synced, IncludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("list changed items: %w", err)
	}

	changes := make([]ledger.CostChange, 0, len(items))
	for _, item := range items {
		changes = append(changes, ledger.CostChange{
			LocationID:  scope.LocationID,
			ItemID:      item.ItemID,
			NewCost:     item.CostPerUnit,
			CostVersion: item.CostVersion,
		})
	}

	report, err := e.Propagate(ctx, scope, changes)
	if err != nil {
		return nil, err
	}

	if n := report.transientFailures(); n > 0 {
		logger.Warn(ctx, "reconcile incomplete, watermark kept",
			"location_id", scope.LocationID,
			"failed", n,
			"synced_cost_version", synced,
		)
		return report, nil
	}

	if err := e.store.MarkCostsSynced(ctx, scope, lv.CostVersion); err != nil {
		return nil, fmt.Errorf("advance synced cost version: %w", err)
	}
	report.SyncedCostVersion = lv.CostVersion
	return report, nil
}

// rewriteMenu re-reads the menu item in its own transaction, lets mutate change it and
// writes it when mutate reports a change. Returns nil when nothing was written.
func (e *Engine) rewriteMenu(ctx context.Context, scope tenant.Scope, menuItemID string, mutate func(*recipe.MenuItem) (bool, error)) (*MenuCostUpdate, error) {
	var update *MenuCostUpdate
	err := tx.WithRetry(ctx, e.txm, e.maxAttempts, func(ctx context.Context) error {
		update = nil
		menu, err := e.recipes.GetMenuItem(ctx, scope, menuItemID)
		if err != nil {
			return err
		}
		if err := branch.AssertLocation(menu, scope.LocationID); err != nil {
			return err
		}

		previous := menu.TotalCost
		changed, err := mutate(menu)
		if err != nil || !changed {
			return err
		}

		// rewritten recipes are stored with canonical references only
		menu.CanonicalizeRefs()
		menu.RecomputeTotal()
		menu.Touch(e.now())
		if err := e.recipes.UpdateMenuItem(ctx, menu); err != nil {
			return err
		}
		update = &MenuCostUpdate{MenuItemID: menu.MenuItemID, PreviousTotal: previous, NewTotal: menu.TotalCost}
		return nil
	})
	return update, err
}

// applyChanges substitutes new unit costs for the changed ingredients of m.
func applyChanges(m *recipe.MenuItem, changed map[string]ledger.CostChange, eps types.Money) (bool, error) {
	dirty := false
	maxVersion := m.CostVersion
	for idx := range m.Ingredients {
		ing := &m.Ingredients[idx]
		ref := ing.ItemRef()
		if ref == "" {
			return false, errUnresolved(m.MenuItemID, ing.Name)
		}
		c, ok := changed[ref]
		if !ok {
			continue
		}
		if c.CostVersion > maxVersion {
			maxVersion = c.CostVersion
		}
		if types.DiffExceeds(ing.UnitCost, c.NewCost, eps) {
			ing.UnitCost = c.NewCost
			dirty = true
		}
	}
	if dirty {
		m.CostVersion = maxVersion
	}
	return dirty, nil
}

const errUnresolvedCode = "UNRESOLVED_INGREDIENT"

func errUnresolved(menuItemID, ingredient string) error {
	return apperror.NewBusinessRule(errUnresolvedCode, "ingredient has no inventory item").
		WithDetail("menu_item_id", menuItemID).
		WithDetail("ingredient", ingredient)
}

func (r *Report) skip(ctx context.Context, menuItemID, reason string, err error) {
	r.Skipped = append(r.Skipped, SkippedMenuItem{MenuItemID: menuItemID, Reason: reason, Detail: err.Error()})
	logger.Warn(ctx, "menu item skipped during cost propagation",
		"location_id", r.LocationID,
		"menu_item_id", menuItemID,
		"reason", reason,
		"error", err,
	)
}
