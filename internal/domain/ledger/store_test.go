package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/storage/memory"
)

var (
	locA = tenant.Scope{TenantID: "t1", LocationID: "loc-a"}
	locB = tenant.Scope{TenantID: "t1", LocationID: "loc-b"}

	fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
)

func newStore(t *testing.T) (*ledger.Store, *memory.Store) {
	t.Helper()
	mem := memory.New()
	return ledger.NewStore(mem, mem, ledger.WithClock(func() time.Time { return fixedNow })), mem
}

func seed(t *testing.T, mem *memory.Store, scope tenant.Scope, itemID, name string, stock int64, cost string) {
	t.Helper()
	require.NoError(t, mem.CreateItem(context.Background(), &ledger.InventoryItem{
		TenantID:     scope.TenantID,
		LocationID:   scope.LocationID,
		ItemID:       itemID,
		Name:         name,
		Unit:         "unit",
		CurrentStock: types.Qty(stock),
		CostPerUnit:  types.MustMoney(cost),
		Active:       true,
	}))
}

func TestApplyDeductions(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "ice-cream", "Ice Cream", 100, "2")
	seed(t, mem, locA, "syrup", "Syrup", 3, "1")

	out, err := store.ApplyDeductions(ctx, locA, map[string]types.Quantity{
		"ice-cream": types.Qty(4),
		"syrup":     types.Qty(5),
	}, ledger.MovementMeta{RefType: ledger.RefTypeOrder, RefID: "o-1", Actor: "cashier"})
	require.NoError(t, err)
	require.Len(t, out.Movements, 2)

	ice, err := store.Snapshot(ctx, locA, "ice-cream")
	require.NoError(t, err)
	require.Equal(t, types.Qty(96), ice.CurrentStock)

	syrup, err := store.Snapshot(ctx, locA, "syrup")
	require.NoError(t, err)
	require.Equal(t, types.Quantity(0), syrup.CurrentStock, "stock floors at zero")

	require.Len(t, out.Oversold, 1)
	require.Equal(t, ledger.OversoldWarning{
		ItemID:    "syrup",
		Requested: types.Qty(5),
		Available: types.Qty(3),
		Shortfall: types.Qty(2),
	}, out.Oversold[0])

	// movements come in item id order and record what was actually removed
	require.Equal(t, "ice-cream", out.Movements[0].ItemID)
	require.Equal(t, types.Qty(-4), out.Movements[0].DeltaQuantity)
	require.Equal(t, "syrup", out.Movements[1].ItemID)
	require.Equal(t, types.Qty(-3), out.Movements[1].DeltaQuantity)
	require.Equal(t, ledger.ReasonSale, out.Movements[1].Reason)
	require.Equal(t, "o-1", out.Movements[1].RefID)
	require.False(t, out.Movements[0].CostChanged)

	lv, err := store.LocationVersion(ctx, locA)
	require.NoError(t, err)
	require.Equal(t, int64(1), lv.StockVersion)
	require.Zero(t, lv.CostVersion)
}

func TestApplyDeductions_Errors(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "milk", "Milk", 10, "1")

	_, err := store.ApplyDeductions(ctx, locA, map[string]types.Quantity{"milk": types.Qty(-1)}, ledger.MovementMeta{})
	require.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = store.ApplyDeductions(ctx, locA, map[string]types.Quantity{"milk": types.Qty(1), "ghost": types.Qty(1)}, ledger.MovementMeta{})
	require.True(t, apperror.IsNotFound(err))

	milk, err := store.Snapshot(ctx, locA, "milk")
	require.NoError(t, err)
	require.Equal(t, types.Qty(10), milk.CurrentStock, "failed call writes nothing")

	_, err = store.ApplyDeductions(ctx, tenant.Scope{TenantID: "t1"}, map[string]types.Quantity{"milk": types.Qty(1)}, ledger.MovementMeta{})
	require.True(t, apperror.IsCode(err, apperror.CodeMissingLocation))
}

func TestApplyReceipt(t *testing.T) {
	tests := []struct {
		name        string
		stock       int64
		cost        string
		qty         int64
		price       string
		wantStock   types.Quantity
		wantCost    string
		costChanged bool
	}{
		{"empty item takes the price", 0, "0", 20, "65", types.Qty(20), "65", true},
		{"weighted average", 10, "50", 20, "65", types.Qty(30), "60", true},
		{"same price keeps cost", 10, "65", 5, "65", types.Qty(15), "65", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, mem := newStore(t)
			seed(t, mem, locA, "milk", "Milk", tt.stock, tt.cost)

			out, err := store.ApplyReceipt(ctx, locA, "milk", types.Qty(tt.qty), types.MustMoney(tt.price),
				ledger.MovementMeta{RefType: ledger.RefTypePurchaseOrder, RefID: "po-1", Actor: "alex"})
			require.NoError(t, err)
			require.Equal(t, tt.wantStock, out.Item.CurrentStock)
			require.True(t, out.Item.CostPerUnit.Equal(types.MustMoney(tt.wantCost)), "cost %s", out.Item.CostPerUnit)
			require.Equal(t, tt.costChanged, out.CostChanged)
			require.Equal(t, tt.costChanged, out.Movement.CostChanged)
			require.Equal(t, ledger.ReasonDelivery, out.Movement.Reason)
			require.Equal(t, types.Qty(tt.qty), out.Movement.DeltaQuantity)

			lv, err := store.LocationVersion(ctx, locA)
			require.NoError(t, err)
			if tt.costChanged {
				require.Equal(t, int64(1), lv.CostVersion)
				require.Equal(t, int64(1), out.Item.CostVersion)
			} else {
				require.Zero(t, lv.CostVersion)
				require.True(t, lv.CostsSynchronized())
			}
		})
	}
}

func TestApplyReceipt_Validation(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "milk", "Milk", 0, "0")

	_, err := store.ApplyReceipt(ctx, locA, "milk", 0, types.MustMoney("1"), ledger.MovementMeta{})
	require.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = store.ApplyReceipt(ctx, locA, "milk", types.Qty(1), types.MustMoney("-1"), ledger.MovementMeta{})
	require.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = store.ApplyReceipt(ctx, locB, "milk", types.Qty(1), types.MustMoney("1"), ledger.MovementMeta{})
	require.True(t, apperror.IsNotFound(err), "items of another location are invisible")
}

func TestEnsureItem(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "milk-a", "Milk", 5, "2")
	seed(t, mem, locB, "milk-b", "Milk", 7, "3")

	byID, created, err := store.EnsureItem(ctx, locA, ledger.ItemSpec{ItemID: "milk-a"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "milk-a", byID.ItemID)

	byName, created, err := store.EnsureItem(ctx, locB, ledger.ItemSpec{ItemID: "milk-a", Name: "MILK"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "milk-b", byName.ItemID, "name lookup stays inside the location")

	fresh, created, err := store.EnsureItem(ctx, locA, ledger.ItemSpec{Name: "Oat Milk", Unit: "l"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, fresh.ItemID)
	require.Equal(t, "loc-a", fresh.LocationID)
	require.True(t, fresh.CurrentStock.IsZero())
	require.True(t, fresh.CostPerUnit.IsZero())

	_, _, err = store.EnsureItem(ctx, locA, ledger.ItemSpec{})
	require.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestApplyAdjustmentAndHistory(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "flour", "Flour", 12, "1")

	mv, err := store.ApplyAdjustment(ctx, locA, "flour", types.Qty(9), ledger.MovementMeta{RefType: ledger.RefTypeStockTake, RefID: "count-1"})
	require.NoError(t, err)
	require.Equal(t, types.Qty(-3), mv.DeltaQuantity)
	require.Equal(t, ledger.ReasonAdjustment, mv.Reason)

	_, err = store.ApplyAdjustment(ctx, locA, "flour", types.Qty(-1), ledger.MovementMeta{})
	require.True(t, apperror.IsCode(err, apperror.CodeValidation))

	history, err := store.Movements(ctx, locA, ledger.MovementFilter{ItemID: "flour"})
	require.NoError(t, err)
	require.Len(t, history, 1)

	none, err := store.Movements(ctx, locB, ledger.MovementFilter{})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "flour", "Flour", 12, "1")

	item, err := store.Deactivate(ctx, locA, "flour")
	require.NoError(t, err)
	require.False(t, item.Active)

	active, err := store.Items(ctx, locA, ledger.ItemFilter{})
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := store.Items(ctx, locA, ledger.ItemFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestApplyDeductions_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store, mem := newStore(t)
	seed(t, mem, locA, "milk", "Milk", 10, "1")

	// a competing sale commits between our read and our commit, once
	mem.BeforeCommit = func(ctx context.Context) {
		mem.BeforeCommit = nil
		_, err := store.ApplyDeductions(ctx, locA, map[string]types.Quantity{"milk": types.Qty(2)}, ledger.MovementMeta{RefID: "other"})
		require.NoError(t, err)
	}

	attempts := 0
	err := tx.WithRetry(ctx, mem, 3, func(ctx context.Context) error {
		attempts++
		_, err := store.ApplyDeductions(ctx, locA, map[string]types.Quantity{"milk": types.Qty(3)}, ledger.MovementMeta{RefID: "mine"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	milk, err := store.Snapshot(ctx, locA, "milk")
	require.NoError(t, err)
	require.Equal(t, types.Qty(5), milk.CurrentStock, "both sales applied exactly once")

	history, err := store.Movements(ctx, locA, ledger.MovementFilter{ItemID: "milk"})
	require.NoError(t, err)
	require.Len(t, history, 2)
}

// writeLog records the order of row-locking writes reaching the repository.
type writeLog struct {
	ledger.Repository
	calls []string
}

func (w *writeLog) UpdateItem(ctx context.Context, item *ledger.InventoryItem) error {
	w.calls = append(w.calls, "item:"+item.ItemID)
	return w.Repository.UpdateItem(ctx, item)
}

func (w *writeLog) BumpLocationVersion(ctx context.Context, scope tenant.Scope, bump ledger.VersionBump) (ledger.LocationVersion, error) {
	w.calls = append(w.calls, "location")
	return w.Repository.BumpLocationVersion(ctx, scope, bump)
}

func TestWritesLockLocationVersionFirst(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, store *ledger.Store) error
		want []string
	}{
		{
			name: "deductions",
			run: func(ctx context.Context, store *ledger.Store) error {
				_, err := store.ApplyDeductions(ctx, locA, map[string]types.Quantity{
					"syrup": types.Qty(1),
					"milk":  types.Qty(1),
				}, ledger.MovementMeta{RefType: ledger.RefTypeOrder, RefID: "o-1"})
				return err
			},
			want: []string{"location", "item:milk", "item:syrup"},
		},
		{
			name: "receipt",
			run: func(ctx context.Context, store *ledger.Store) error {
				_, err := store.ApplyReceipt(ctx, locA, "milk", types.Qty(2), types.MustMoney("3"),
					ledger.MovementMeta{RefType: ledger.RefTypePurchaseOrder, RefID: "po-1"})
				return err
			},
			want: []string{"location", "item:milk"},
		},
		{
			name: "adjustment",
			run: func(ctx context.Context, store *ledger.Store) error {
				_, err := store.ApplyAdjustment(ctx, locA, "milk", types.Qty(7),
					ledger.MovementMeta{RefType: ledger.RefTypeStockTake, RefID: "count-1"})
				return err
			},
			want: []string{"location", "item:milk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New()
			seed(t, mem, locA, "milk", "Milk", 10, "2")
			seed(t, mem, locA, "syrup", "Syrup", 10, "1")

			log := &writeLog{Repository: mem}
			store := ledger.NewStore(log, mem, ledger.WithClock(func() time.Time { return fixedNow }))

			require.NoError(t, tt.run(context.Background(), store))
			require.Equal(t, tt.want, log.calls)
		})
	}
}

func TestAssertLocation_NilItem(t *testing.T) {
	var item *ledger.InventoryItem
	err := branch.AssertLocation(item, "loc-a")
	require.True(t, apperror.IsCode(err, apperror.CodeBranchIsolation), "got %v", err)

	appErr, _ := apperror.AsAppError(err)
	require.Equal(t, "inventory_item", appErr.Details["entity"])
	require.Equal(t, "", appErr.Details["actual_location"])
}
