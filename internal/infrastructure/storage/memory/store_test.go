package memory

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
)

var scope = tenant.Scope{TenantID: "t1", LocationID: "loc-a"}

func seedItem(t *testing.T, s *Store, itemID string, stock int64) *ledger.InventoryItem {
	t.Helper()
	item := &ledger.InventoryItem{
		TenantID:     scope.TenantID,
		LocationID:   scope.LocationID,
		ItemID:       itemID,
		Name:         itemID,
		CurrentStock: types.Qty(stock),
		CostPerUnit:  types.Zero(),
		Active:       true,
	}
	require.NoError(t, s.CreateItem(context.Background(), item))
	return item
}

func TestStore_UpdateItemCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedItem(t, s, "milk", 10)

	first, err := s.GetItem(ctx, scope, "milk")
	require.NoError(t, err)
	stale, err := s.GetItem(ctx, scope, "milk")
	require.NoError(t, err)

	first.CurrentStock = types.Qty(8)
	require.NoError(t, s.UpdateItem(ctx, first))
	require.Equal(t, int64(2), first.Version)

	stale.CurrentStock = types.Qty(5)
	err = s.UpdateItem(ctx, stale)
	require.True(t, apperror.IsConcurrentModification(err))
	require.Equal(t, int64(1), stale.Version, "version is restored on failure")

	got, err := s.GetItem(ctx, scope, "milk")
	require.NoError(t, err)
	require.Equal(t, types.Qty(8), got.CurrentStock)
}

func TestStore_CreateDuplicate(t *testing.T) {
	s := New()
	seedItem(t, s, "milk", 1)

	err := s.CreateItem(context.Background(), &ledger.InventoryItem{
		TenantID: scope.TenantID, LocationID: scope.LocationID, ItemID: "milk",
	})
	require.True(t, apperror.IsConcurrentModification(err))
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	item := seedItem(t, s, "milk", 10)
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		item.CurrentStock = types.Qty(1)
		require.NoError(t, s.UpdateItem(ctx, item))
		require.NoError(t, s.AppendMovements(ctx, []ledger.Movement{{TenantID: scope.TenantID, LocationID: scope.LocationID, ItemID: "milk"}}))

		inside, err := s.GetItem(ctx, scope, "milk")
		require.NoError(t, err)
		require.Equal(t, types.Qty(1), inside.CurrentStock, "own writes are visible")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetItem(ctx, scope, "milk")
	require.NoError(t, err)
	require.Equal(t, types.Qty(10), got.CurrentStock)

	mv, err := s.ListMovements(ctx, scope, ledger.MovementFilter{})
	require.NoError(t, err)
	require.Empty(t, mv)
}

func TestStore_CommitDetectsConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedItem(t, s, "milk", 10)

	s.BeforeCommit = func(ctx context.Context) {
		s.BeforeCommit = nil
		other, err := s.GetItem(ctx, scope, "milk")
		require.NoError(t, err)
		other.CurrentStock = types.Qty(3)
		require.NoError(t, s.UpdateItem(ctx, other))
	}

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		item, err := s.GetItem(ctx, scope, "milk")
		if err != nil {
			return err
		}
		item.CurrentStock = types.Qty(9)
		return s.UpdateItem(ctx, item)
	})
	require.True(t, apperror.IsConcurrentModification(err))

	got, err := s.GetItem(ctx, scope, "milk")
	require.NoError(t, err)
	require.Equal(t, types.Qty(3), got.CurrentStock)
}

func TestStore_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedItem(t, s, "milk", 10)

	other := tenant.Scope{TenantID: scope.TenantID, LocationID: "loc-b"}
	_, err := s.GetItem(ctx, other, "milk")
	require.True(t, apperror.IsNotFound(err))

	_, err = s.FindItemByName(ctx, other, "MILK")
	require.True(t, apperror.IsNotFound(err))

	found, err := s.FindItemByName(ctx, scope, " Milk ")
	require.NoError(t, err)
	require.Equal(t, "milk", found.ItemID)
}

func TestStore_LocationVersion(t *testing.T) {
	ctx := context.Background()
	s := New()

	lv, err := s.GetLocationVersion(ctx, scope)
	require.NoError(t, err)
	require.Zero(t, lv.StockVersion)

	lv, err = s.BumpLocationVersion(ctx, scope, ledger.VersionBump{Stock: true, Cost: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), lv.StockVersion)
	require.Equal(t, int64(1), lv.CostVersion)
	require.False(t, lv.CostsSynchronized())

	require.NoError(t, s.AdvanceSyncedCostVersion(ctx, scope, 1))
	require.NoError(t, s.AdvanceSyncedCostVersion(ctx, scope, 0))

	lv, err = s.GetLocationVersion(ctx, scope)
	require.NoError(t, err)
	require.Equal(t, int64(1), lv.SyncedCostVersion, "watermark never moves back")
	require.True(t, lv.CostsSynchronized())
}

func TestSequence_Next(t *testing.T) {
	seq := NewSequence()
	ctx := context.Background()
	at := mustYear(2026)

	n, err := seq.Next(ctx, "t1", "PO", at)
	require.NoError(t, err)
	require.Equal(t, "PO-2026-00001", n)

	n, err = seq.Next(ctx, "t1", "PO", at)
	require.NoError(t, err)
	require.Equal(t, "PO-2026-00002", n)
}

func mustYear(year int) time.Time {
	return time.Date(year, 3, 1, 0, 0, 0, 0, time.UTC)
}
