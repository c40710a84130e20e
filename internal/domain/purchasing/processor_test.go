package purchasing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/types"
	"larder/internal/domain/ledger"
	"larder/internal/domain/purchasing"
	"larder/internal/infrastructure/storage/memory"
)

type recordingDispatcher struct {
	scopes  []tenant.Scope
	changes [][]ledger.CostChange
	err     error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) error {
	d.scopes = append(d.scopes, scope)
	d.changes = append(d.changes, changes)
	return d.err
}

type recordingNotifier struct {
	events []purchasing.DeliveryCompleted
}

func (n *recordingNotifier) DeliveryCompleted(ctx context.Context, event purchasing.DeliveryCompleted) error {
	n.events = append(n.events, event)
	return nil
}

type fixture struct {
	ctx        context.Context
	mem        *memory.Store
	store      *ledger.Store
	svc        *purchasing.Service
	proc       *purchasing.Processor
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	store := ledger.NewStore(mem, mem)
	f := &fixture{
		ctx:        tenant.WithTenantID(context.Background(), "t1"),
		mem:        mem,
		store:      store,
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
	f.svc = purchasing.NewService(mem, memory.NewSequence(), mem)
	f.proc = purchasing.NewProcessor(mem, store, mem,
		purchasing.WithCostChangeHandler(f.dispatcher),
		purchasing.WithNotifier(f.notifier),
	)
	return f
}

func (f *fixture) submitted(t *testing.T, location string, lines ...purchasing.Line) *purchasing.PurchaseOrder {
	t.Helper()
	po, err := f.svc.Create(f.ctx, purchasing.CreateInput{LocationID: location, Supplier: "Dairy Co", Lines: lines})
	require.NoError(t, err)
	po, err = f.svc.Submit(f.ctx, po.POID)
	require.NoError(t, err)
	return po
}

func (f *fixture) movements(t *testing.T, location string) []ledger.Movement {
	t.Helper()
	mv, err := f.store.Movements(f.ctx, tenant.Scope{TenantID: "t1", LocationID: location}, ledger.MovementFilter{})
	require.NoError(t, err)
	return mv
}

func milkLine() purchasing.Line {
	return purchasing.Line{ItemName: "Milk", Unit: "l", OrderedQty: types.Qty(20), UnitPrice: types.MustMoney("65")}
}

func TestDeliver_CreatesItemAtDeliveredCost(t *testing.T) {
	f := newFixture(t)
	po := f.submitted(t, "loc-a", milkLine())

	res, err := f.proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)

	line := res.Lines[0]
	require.True(t, line.ItemCreated)
	require.Equal(t, types.Qty(20), line.NewStock)
	require.True(t, line.NewCost.Equal(types.MustMoney("65")))
	require.True(t, line.CostChanged)

	item, err := f.store.Snapshot(f.ctx, tenant.Scope{TenantID: "t1", LocationID: "loc-a"}, line.InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, types.Qty(20), item.CurrentStock)
	require.True(t, item.CostPerUnit.Equal(types.MustMoney("65")))

	require.Equal(t, purchasing.StatusDelivered, res.Order.Status)
	require.Equal(t, "alex", res.Order.DeliveredBy)
	require.NotNil(t, res.Order.DeliveredAt)
	require.Equal(t, line.InventoryItemID, res.Order.Lines[0].InventoryItemID)
	require.Equal(t, types.Qty(20), res.Order.Lines[0].QuantityReceived)

	require.Len(t, f.dispatcher.changes, 1)
	require.Equal(t, "loc-a", f.dispatcher.scopes[0].LocationID)
	require.Len(t, f.dispatcher.changes[0], 1)
	require.True(t, f.dispatcher.changes[0][0].PreviousCost.IsZero())

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, purchasing.DeliveryCompleted{
		TenantID:            "t1",
		POID:                po.POID,
		OrderNumber:         po.OrderNumber,
		LocationID:          "loc-a",
		ItemsDeliveredCount: 1,
		DeliveredBy:         "alex",
		SupplierName:        "Dairy Co",
		DeliveredAt:         *res.Order.DeliveredAt,
	}, f.notifier.events[0])
}

func TestDeliver_SecondDeliveryIsRejected(t *testing.T) {
	f := newFixture(t)
	po := f.submitted(t, "loc-a", milkLine())

	first, err := f.proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.NoError(t, err)
	require.Len(t, f.movements(t, "loc-a"), 1)

	_, err = f.proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.True(t, apperror.IsCode(err, apperror.CodeAlreadyDelivered))

	require.Len(t, f.movements(t, "loc-a"), 1, "no extra movements")
	item, err := f.store.Snapshot(f.ctx, tenant.Scope{TenantID: "t1", LocationID: "loc-a"}, first.Lines[0].InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, types.Qty(20), item.CurrentStock)
	require.Len(t, f.notifier.events, 1)
}

func TestDeliver_ResolvesExistingItemsWithinLocationOnly(t *testing.T) {
	f := newFixture(t)
	locA := tenant.Scope{TenantID: "t1", LocationID: "loc-a"}
	locB := tenant.Scope{TenantID: "t1", LocationID: "loc-b"}
	require.NoError(t, f.mem.CreateItem(f.ctx, &ledger.InventoryItem{
		TenantID: "t1", LocationID: "loc-a", ItemID: "milk-a", Name: "milk",
		CurrentStock: types.Qty(10), CostPerUnit: types.MustMoney("50"), Active: true,
	}))

	poA := f.submitted(t, "loc-a", milkLine())
	resA, err := f.proc.Deliver(f.ctx, poA.POID, "alex", nil)
	require.NoError(t, err)
	require.False(t, resA.Lines[0].ItemCreated)
	require.Equal(t, "milk-a", resA.Lines[0].InventoryItemID)

	milkA, err := f.store.Snapshot(f.ctx, locA, "milk-a")
	require.NoError(t, err)
	require.Equal(t, types.Qty(30), milkA.CurrentStock)
	require.True(t, milkA.CostPerUnit.Equal(types.MustMoney("60")))

	poB := f.submitted(t, "loc-b", milkLine())
	resB, err := f.proc.Deliver(f.ctx, poB.POID, "sam", nil)
	require.NoError(t, err)
	require.True(t, resB.Lines[0].ItemCreated, "same name in another location is another item")
	require.NotEqual(t, "milk-a", resB.Lines[0].InventoryItemID)

	milkB, err := f.store.Snapshot(f.ctx, locB, resB.Lines[0].InventoryItemID)
	require.NoError(t, err)
	require.Equal(t, types.Qty(20), milkB.CurrentStock)

	milkA, err = f.store.Snapshot(f.ctx, locA, "milk-a")
	require.NoError(t, err)
	require.Equal(t, types.Qty(30), milkA.CurrentStock, "loc-a untouched by loc-b delivery")
}

func TestDeliver_PartialReceipts(t *testing.T) {
	f := newFixture(t)
	sugar := purchasing.Line{ItemName: "Sugar", OrderedQty: types.Qty(5), UnitPrice: types.MustMoney("3")}
	po := f.submitted(t, "loc-a", milkLine(), sugar)
	price := types.MustMoney("70")

	res, err := f.proc.Deliver(f.ctx, po.POID, "alex", []purchasing.LineReceipt{
		{LineIndex: 0, QuantityReceived: types.Qty(10), UnitPrice: &price},
		{LineIndex: 1, QuantityReceived: 0},
	})
	require.NoError(t, err)
	require.Len(t, res.Movements, 1, "zero quantity lines produce no movement")
	require.True(t, res.Lines[0].NewCost.Equal(price))
	require.Equal(t, types.Qty(10), res.Order.Lines[0].QuantityReceived)
	require.Equal(t, types.Quantity(0), res.Order.Lines[1].QuantityReceived)
	require.Equal(t, purchasing.StatusDelivered, res.Order.Status)
	require.Equal(t, 1, f.notifier.events[0].ItemsDeliveredCount)
}

func TestDeliver_Rejections(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.proc.Deliver(f.ctx, "missing", "alex", nil)
		require.True(t, apperror.IsNotFound(err))
	})

	t.Run("missing actor", func(t *testing.T) {
		f := newFixture(t)
		po := f.submitted(t, "loc-a", milkLine())
		_, err := f.proc.Deliver(f.ctx, po.POID, "  ", nil)
		require.True(t, apperror.IsCode(err, apperror.CodeMissingActor))
		require.Empty(t, f.movements(t, "loc-a"))
	})

	t.Run("draft", func(t *testing.T) {
		f := newFixture(t)
		po, err := f.svc.Create(f.ctx, purchasing.CreateInput{LocationID: "loc-a", Supplier: "Dairy Co", Lines: []purchasing.Line{milkLine()}})
		require.NoError(t, err)
		_, err = f.proc.Deliver(f.ctx, po.POID, "alex", nil)
		require.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
	})

	t.Run("missing location", func(t *testing.T) {
		f := newFixture(t)
		now := time.Now().UTC()
		require.NoError(t, f.mem.CreateOrder(f.ctx, &purchasing.PurchaseOrder{
			TenantID: "t1", POID: "po-x", Supplier: "Dairy Co", Status: purchasing.StatusSubmitted,
			SubmittedAt: &now, Lines: []purchasing.Line{milkLine()},
		}))
		_, err := f.proc.Deliver(f.ctx, "po-x", "alex", nil)
		require.True(t, apperror.IsCode(err, apperror.CodeMissingLocation))
	})

	t.Run("bad receipt index", func(t *testing.T) {
		f := newFixture(t)
		po := f.submitted(t, "loc-a", milkLine())
		_, err := f.proc.Deliver(f.ctx, po.POID, "alex", []purchasing.LineReceipt{{LineIndex: 3, QuantityReceived: types.Qty(1)}})
		require.True(t, apperror.IsCode(err, apperror.CodeValidation))

		got, err := f.svc.Get(f.ctx, po.POID)
		require.NoError(t, err)
		require.Equal(t, purchasing.StatusSubmitted, got.Status)
	})

	t.Run("other tenant", func(t *testing.T) {
		f := newFixture(t)
		po := f.submitted(t, "loc-a", milkLine())
		other := tenant.WithTenantID(context.Background(), "t2")
		_, err := f.proc.Deliver(other, po.POID, "alex", nil)
		require.True(t, apperror.IsNotFound(err))
	})
}

func TestDeliver_DispatchFailureDoesNotUndoDelivery(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")
	po := f.submitted(t, "loc-a", milkLine())

	res, err := f.proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusDelivered, res.Order.Status)

	got, err := f.svc.Get(f.ctx, po.POID)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusDelivered, got.Status)
}

func TestDeliver_ConcurrentDeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t)
	po := f.submitted(t, "loc-a", milkLine())

	// another delivery of the same order commits while ours is in flight
	f.mem.BeforeCommit = func(ctx context.Context) {
		f.mem.BeforeCommit = nil
		_, err := f.proc.Deliver(ctx, po.POID, "sam", nil)
		require.NoError(t, err)
	}

	_, err := f.proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.True(t, apperror.IsCode(err, apperror.CodeAlreadyDelivered), "retry re-reads the order")
	require.Len(t, f.movements(t, "loc-a"), 1)
}

type failingOrders struct {
	purchasing.Repository
	err error
}

func (r *failingOrders) UpdateOrder(ctx context.Context, po *purchasing.PurchaseOrder) error {
	return r.err
}

func TestDeliver_FailureRollsBackEveryLine(t *testing.T) {
	f := newFixture(t)
	locA := tenant.Scope{TenantID: "t1", LocationID: "loc-a"}
	require.NoError(t, f.mem.CreateItem(f.ctx, &ledger.InventoryItem{
		TenantID: "t1", LocationID: "loc-a", ItemID: "sugar", Name: "Sugar",
		CurrentStock: types.Qty(4), CostPerUnit: types.MustMoney("2"), Active: true,
	}))
	sugar := purchasing.Line{InventoryItemID: "sugar", ItemName: "Sugar", OrderedQty: types.Qty(6), UnitPrice: types.MustMoney("7")}
	po := f.submitted(t, "loc-a", milkLine(), sugar)

	proc := purchasing.NewProcessor(&failingOrders{Repository: f.mem, err: errors.New("disk full")}, f.store, f.mem,
		purchasing.WithCostChangeHandler(f.dispatcher),
		purchasing.WithNotifier(f.notifier),
	)
	_, err := proc.Deliver(f.ctx, po.POID, "alex", nil)
	require.Error(t, err)

	require.Empty(t, f.movements(t, "loc-a"))

	items, err := f.store.Items(f.ctx, locA, ledger.ItemFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, items, 1, "no item created for the milk line")

	got, err := f.store.Snapshot(f.ctx, locA, "sugar")
	require.NoError(t, err)
	require.Equal(t, types.Qty(4), got.CurrentStock)
	require.True(t, got.CostPerUnit.Equal(types.MustMoney("2")))

	order, err := f.svc.Get(f.ctx, po.POID)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusSubmitted, order.Status)

	require.Empty(t, f.dispatcher.changes)
	require.Empty(t, f.notifier.events)
}
