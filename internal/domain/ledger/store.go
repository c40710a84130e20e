package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"larder/internal/core/apperror"
	"larder/internal/core/id"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/pkg/logger"
)

var tracer = otel.Tracer("larder/ledger")

// Store applies stock and cost mutations. Each Apply* call runs in the transaction
// carried by ctx, or in its own transaction when there is none, so a caller can group
// a whole logical operation (one order, one purchase order) into one commit.
type Store struct {
	repo    Repository
	txm     tx.Manager
	epsilon types.Money
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEpsilon sets the tolerance used to decide whether a cost changed.
func WithEpsilon(eps types.Money) StoreOption {
	return func(s *Store) { s.epsilon = eps }
}

// WithClock replaces time.Now. Tests only.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a ledger store.
func NewStore(repo Repository, txm tx.Manager, opts ...StoreOption) *Store {
	s := &Store{
		repo:    repo,
		txm:     txm,
		epsilon: types.CostEpsilon,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Epsilon returns the cost tolerance of the store.
func (s *Store) Epsilon() types.Money {
	return s.epsilon
}

// DeductionOutcome is the result of ApplyDeductions.
type DeductionOutcome struct {
	Movements []Movement
	Oversold  []OversoldWarning
}

// ApplyDeductions subtracts every quantity in deductions from its item, flooring stock at
// zero. Items are processed in id order so concurrent writers touch rows in the same order.
func (s *Store) ApplyDeductions(ctx context.Context, scope tenant.Scope, deductions map[string]types.Quantity, meta MovementMeta) (*DeductionOutcome, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ledger.ApplyDeductions", trace.WithAttributes(
		attribute.String("location_id", scope.LocationID),
		attribute.Int("items", len(deductions)),
	))
	defer span.End()

	itemIDs := make([]string, 0, len(deductions))
	for itemID, qty := range deductions {
		if qty.IsNegative() {
			return nil, apperror.NewValidation("deduction quantity cannot be negative").
				WithDetail("item_id", itemID).
				WithDetail("quantity", qty)
		}
		if qty.IsPositive() {
			itemIDs = append(itemIDs, itemID)
		}
	}
	sort.Strings(itemIDs)

	var out DeductionOutcome
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		out = DeductionOutcome{}
		if len(itemIDs) == 0 {
			return nil
		}

		// Location version row first, then item rows: the lock order of every ledger write.
		if _, err := s.repo.BumpLocationVersion(ctx, scope, VersionBump{Stock: true}); err != nil {
			return fmt.Errorf("bump location version: %w", err)
		}

		items, err := s.repo.GetItems(ctx, scope, itemIDs)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}

		now := s.now()
		movements := make([]Movement, 0, len(itemIDs))
		for _, itemID := range itemIDs {
			item, ok := items[itemID]
			if !ok {
				return apperror.NewNotFound("inventory_item", itemID).
					WithDetail("location_id", scope.LocationID)
			}
			if err := branch.AssertLocation(item, scope.LocationID); err != nil {
				return err
			}

			qty := deductions[itemID]
			previous := item.CurrentStock
			next, shortfall := FloorDeduct(previous, qty)
			if shortfall.IsPositive() {
				out.Oversold = append(out.Oversold, OversoldWarning{
					ItemID:    itemID,
					Requested: qty,
					Available: previous,
					Shortfall: shortfall,
				})
			}

			item.CurrentStock = next
			item.Touch(now)
			if err := s.repo.UpdateItem(ctx, item); err != nil {
				return err
			}
			movements = append(movements, s.movement(scope, item, ReasonSale, previous, item.CostPerUnit, false, meta, now))
		}

		if err := s.repo.AppendMovements(ctx, movements); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}

		out.Movements = movements
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, w := range out.Oversold {
		logger.Warn(ctx, "oversold: stock floored at zero",
			"location_id", scope.LocationID,
			"item_id", w.ItemID,
			"requested", w.Requested,
			"available", w.Available,
			"shortfall", w.Shortfall,
			"ref_id", meta.RefID,
		)
	}

	return &out, nil
}

// ReceiptOutcome is the result of ApplyReceipt.
type ReceiptOutcome struct {
	Movement      Movement
	Item          InventoryItem
	PreviousStock types.Quantity
	PreviousCost  types.Money
	CostChanged   bool
}

// ApplyReceipt adds qty at unitPrice to an item and recomputes its weighted-average cost.
// A cost change bumps the location cost version and stamps it on the item.
func (s *Store) ApplyReceipt(ctx context.Context, scope tenant.Scope, itemID string, qty types.Quantity, unitPrice types.Money, meta MovementMeta) (*ReceiptOutcome, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("received quantity must be positive").
			WithDetail("item_id", itemID).
			WithDetail("quantity", qty)
	}
	if unitPrice.IsNegative() {
		return nil, apperror.NewValidation("unit price cannot be negative").
			WithDetail("item_id", itemID)
	}

	var out *ReceiptOutcome
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, scope, itemID)
		if err != nil {
			return err
		}
		if err := branch.AssertLocation(item, scope.LocationID); err != nil {
			return err
		}

		previousStock := item.CurrentStock
		previousCost := item.CostPerUnit
		newCost := WeightedAverageCost(previousStock, previousCost, qty, unitPrice)
		changed := CostChanged(previousCost, newCost, s.epsilon)

		lv, err := s.repo.BumpLocationVersion(ctx, scope, VersionBump{Stock: true, Cost: changed})
		if err != nil {
			return fmt.Errorf("bump location version: %w", err)
		}

		now := s.now()
		item.CurrentStock = previousStock + qty
		item.CostPerUnit = newCost
		if changed {
			item.CostVersion = lv.CostVersion
		}
		item.Touch(now)
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return err
		}

		mv := s.movement(scope, item, ReasonDelivery, previousStock, previousCost, changed, meta, now)
		if err := s.repo.AppendMovements(ctx, []Movement{mv}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		out = &ReceiptOutcome{
			Movement:      mv,
			Item:          *item,
			PreviousStock: previousStock,
			PreviousCost:  previousCost,
			CostChanged:   changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyAdjustment sets an item's stock to a counted quantity (stock take).
func (s *Store) ApplyAdjustment(ctx context.Context, scope tenant.Scope, itemID string, counted types.Quantity, meta MovementMeta) (*Movement, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if counted.IsNegative() {
		return nil, apperror.NewValidation("counted stock cannot be negative").
			WithDetail("item_id", itemID)
	}

	var out Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, scope, itemID)
		if err != nil {
			return err
		}
		if err := branch.AssertLocation(item, scope.LocationID); err != nil {
			return err
		}

		if _, err := s.repo.BumpLocationVersion(ctx, scope, VersionBump{Stock: true}); err != nil {
			return fmt.Errorf("bump location version: %w", err)
		}

		now := s.now()
		previous := item.CurrentStock
		item.CurrentStock = counted
		item.Touch(now)
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return err
		}

		out = s.movement(scope, item, ReasonAdjustment, previous, item.CostPerUnit, false, meta, now)
		if err := s.repo.AppendMovements(ctx, []Movement{out}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot returns the current values of an item.
func (s *Store) Snapshot(ctx context.Context, scope tenant.Scope, itemID string) (*InventoryItem, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, scope, itemID)
	if err != nil {
		return nil, err
	}
	if err := branch.AssertLocation(item, scope.LocationID); err != nil {
		return nil, err
	}
	return item, nil
}

// Lookup returns the items of itemIDs that exist in the scope.
func (s *Store) Lookup(ctx context.Context, scope tenant.Scope, itemIDs []string) (map[string]*InventoryItem, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return map[string]*InventoryItem{}, nil
	}
	items, err := s.repo.GetItems(ctx, scope, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	for _, item := range items {
		if err := branch.AssertLocation(item, scope.LocationID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// FindByName resolves an item by name inside the scope only.
func (s *Store) FindByName(ctx context.Context, scope tenant.Scope, name string) (*InventoryItem, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	item, err := s.repo.FindItemByName(ctx, scope, name)
	if err != nil {
		return nil, err
	}
	if err := branch.AssertLocation(item, scope.LocationID); err != nil {
		return nil, err
	}
	return item, nil
}

// ItemSpec describes an item to resolve or create.
type ItemSpec struct {
	ItemID string
	Name   string
	Unit   string
}

// EnsureItem resolves spec inside the scope: by id, then by name. When neither matches
// a new item is created at zero stock and zero cost.
func (s *Store) EnsureItem(ctx context.Context, scope tenant.Scope, spec ItemSpec) (item *InventoryItem, created bool, err error) {
	if err := checkScope(scope); err != nil {
		return nil, false, err
	}
	spec.ItemID = strings.TrimSpace(spec.ItemID)
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.ItemID == "" && spec.Name == "" {
		return nil, false, apperror.NewValidation("item id or name is required")
	}

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if spec.ItemID != "" {
			found, err := s.repo.GetItem(ctx, scope, spec.ItemID)
			if err == nil {
				item, created = found, false
				return branch.AssertLocation(found, scope.LocationID)
			}
			if !apperror.IsNotFound(err) {
				return err
			}
		}

		if spec.Name != "" {
			found, err := s.repo.FindItemByName(ctx, scope, spec.Name)
			if err == nil {
				item, created = found, false
				return branch.AssertLocation(found, scope.LocationID)
			}
			if !apperror.IsNotFound(err) {
				return err
			}
		}

		name := spec.Name
		if name == "" {
			name = spec.ItemID
		}
		fresh := &InventoryItem{
			TenantID:    scope.TenantID,
			LocationID:  scope.LocationID,
			ItemID:      id.NewString(),
			Name:        name,
			Unit:        spec.Unit,
			CostPerUnit: types.Zero(),
			Active:      true,
		}
		fresh.Touch(s.now())
		if err := fresh.Validate(ctx); err != nil {
			return err
		}
		if err := s.repo.CreateItem(ctx, fresh); err != nil {
			return err
		}
		item, created = fresh, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		logger.Info(ctx, "inventory item created on first reference",
			"location_id", scope.LocationID,
			"item_id", item.ItemID,
			"name", item.Name,
		)
	}
	return item, created, nil
}

// Deactivate soft-deactivates an item. Items are never physically deleted.
func (s *Store) Deactivate(ctx context.Context, scope tenant.Scope, itemID string) (*InventoryItem, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var out *InventoryItem
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, scope, itemID)
		if err != nil {
			return err
		}
		if err := branch.AssertLocation(item, scope.LocationID); err != nil {
			return err
		}
		if !item.Active {
			out = item
			return nil
		}
		item.Active = false
		item.Touch(s.now())
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Movements returns the movement history of the scope.
func (s *Store) Movements(ctx context.Context, scope tenant.Scope, filter MovementFilter) ([]Movement, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, scope, filter)
}

// Items lists items of the scope.
func (s *Store) Items(ctx context.Context, scope tenant.Scope, filter ItemFilter) ([]*InventoryItem, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	return s.repo.ListItems(ctx, scope, filter)
}

// LocationVersion returns the last-write version of the scope.
func (s *Store) LocationVersion(ctx context.Context, scope tenant.Scope) (LocationVersion, error) {
	if err := checkScope(scope); err != nil {
		return LocationVersion{}, err
	}
	return s.repo.GetLocationVersion(ctx, scope)
}

// MarkCostsSynced records that menu costs reflect every cost change up to version.
func (s *Store) MarkCostsSynced(ctx context.Context, scope tenant.Scope, version int64) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	return s.repo.AdvanceSyncedCostVersion(ctx, scope, version)
}

func (s *Store) movement(scope tenant.Scope, item *InventoryItem, reason Reason, previousStock types.Quantity, previousCost types.Money, costChanged bool, meta MovementMeta, now time.Time) Movement {
	return Movement{
		ID:                  id.New(),
		TenantID:            scope.TenantID,
		LocationID:          scope.LocationID,
		ItemID:              item.ItemID,
		DeltaQuantity:       item.CurrentStock - previousStock,
		Reason:              reason,
		PreviousStock:       previousStock,
		NewStock:            item.CurrentStock,
		PreviousCostPerUnit: previousCost,
		NewCostPerUnit:      item.CostPerUnit,
		CostChanged:         costChanged,
		RefType:             meta.RefType,
		RefID:               meta.RefID,
		Actor:               meta.Actor,
		Timestamp:           now,
	}
}

func checkScope(scope tenant.Scope) error {
	if scope.TenantID == "" {
		return apperror.NewValidation("tenant is required")
	}
	if scope.LocationID == "" {
		return apperror.NewMissingLocation("scope", scope.TenantID)
	}
	return nil
}
