package memory

import (
	"context"
	"sort"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
)

func (s *Store) GetItem(ctx context.Context, scope tenant.Scope, itemID string) (*ledger.InventoryItem, error) {
	item, ok := get(s, s.items, itemsOf(ctx), itemKey{scope.TenantID, scope.LocationID, itemID})
	if !ok {
		return nil, apperror.NewNotFound("inventory_item", itemID)
	}
	return item, nil
}

func (s *Store) GetItems(ctx context.Context, scope tenant.Scope, itemIDs []string) (map[string]*ledger.InventoryItem, error) {
	out := make(map[string]*ledger.InventoryItem, len(itemIDs))
	ch := itemsOf(ctx)
	for _, itemID := range itemIDs {
		if item, ok := get(s, s.items, ch, itemKey{scope.TenantID, scope.LocationID, itemID}); ok {
			out[itemID] = item
		}
	}
	return out, nil
}

func (s *Store) FindItemByName(ctx context.Context, scope tenant.Scope, name string) (*ledger.InventoryItem, error) {
	want := ledger.NameKey(name)
	found := scan(s, s.items, itemsOf(ctx), func(k itemKey, v *ledger.InventoryItem) bool {
		return k.tenant == scope.TenantID && k.location == scope.LocationID && ledger.NameKey(v.Name) == want
	})
	if len(found) == 0 {
		return nil, apperror.NewNotFound("inventory_item", name)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ItemID < found[j].ItemID })
	return found[0], nil
}

func (s *Store) ListItems(ctx context.Context, scope tenant.Scope, filter ledger.ItemFilter) ([]*ledger.InventoryItem, error) {
	out := scan(s, s.items, itemsOf(ctx), func(k itemKey, v *ledger.InventoryItem) bool {
		if k.tenant != scope.TenantID || k.location != scope.LocationID {
			return false
		}
		if !filter.IncludeInactive && !v.Active {
			return false
		}
		if filter.CostVersionAbove != nil && v.CostVersion <= *filter.CostVersionAbove {
			return false
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (s *Store) CreateItem(ctx context.Context, item *ledger.InventoryItem) error {
	return s.write(ctx, func(t *txn) error {
		item.Version = 1
		err := put(s, s.items, t.items, itemKey{item.TenantID, item.LocationID, item.ItemID}, item, -1, item.ItemID)
		if err != nil {
			item.Version = 0
		}
		return err
	})
}

func (s *Store) UpdateItem(ctx context.Context, item *ledger.InventoryItem) error {
	return s.write(ctx, func(t *txn) error {
		expected := item.Version
		item.Version++
		err := put(s, s.items, t.items, itemKey{item.TenantID, item.LocationID, item.ItemID}, item, expected, item.ItemID)
		if err != nil {
			item.Version = expected
		}
		return err
	})
}

func (s *Store) AppendMovements(ctx context.Context, movements []ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	return s.write(ctx, func(t *txn) error {
		t.movements = append(t.movements, movements...)
		return nil
	})
}

func (s *Store) ListMovements(ctx context.Context, scope tenant.Scope, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	match := func(m ledger.Movement) bool {
		switch {
		case m.TenantID != scope.TenantID || m.LocationID != scope.LocationID:
			return false
		case filter.ItemID != "" && m.ItemID != filter.ItemID:
			return false
		case filter.Reason != "" && m.Reason != filter.Reason:
			return false
		case filter.RefType != "" && m.RefType != filter.RefType:
			return false
		case filter.RefID != "" && m.RefID != filter.RefID:
			return false
		}
		return true
	}

	var out []ledger.Movement
	s.mu.Lock()
	for _, m := range s.movements {
		if match(m) {
			out = append(out, m)
		}
	}
	s.mu.Unlock()
	if t := getTxn(ctx); t != nil {
		for _, m := range t.movements {
			if match(m) {
				out = append(out, m)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (s *Store) GetLocationVersion(ctx context.Context, scope tenant.Scope) (ledger.LocationVersion, error) {
	row, ok := get(s, s.versions, versionsOf(ctx), scopeKey{scope.TenantID, scope.LocationID})
	if !ok {
		return ledger.LocationVersion{TenantID: scope.TenantID, LocationID: scope.LocationID}, nil
	}
	return row.LocationVersion, nil
}

func (s *Store) BumpLocationVersion(ctx context.Context, scope tenant.Scope, bump ledger.VersionBump) (ledger.LocationVersion, error) {
	var out ledger.LocationVersion
	err := s.updateVersion(ctx, scope, func(lv *ledger.LocationVersion) {
		if bump.Stock {
			lv.StockVersion++
		}
		if bump.Cost {
			lv.CostVersion++
		}
		out = *lv
	})
	return out, err
}

func (s *Store) AdvanceSyncedCostVersion(ctx context.Context, scope tenant.Scope, version int64) error {
	return s.updateVersion(ctx, scope, func(lv *ledger.LocationVersion) {
		if version > lv.SyncedCostVersion {
			lv.SyncedCostVersion = version
		}
	})
}

func (s *Store) updateVersion(ctx context.Context, scope tenant.Scope, mutate func(*ledger.LocationVersion)) error {
	return s.write(ctx, func(t *txn) error {
		k := scopeKey{scope.TenantID, scope.LocationID}
		row, ok := get(s, s.versions, t.versions, k)
		expected := int64(-1)
		if ok {
			expected = row.rev
		} else {
			row = &lvRow{LocationVersion: ledger.LocationVersion{TenantID: scope.TenantID, LocationID: scope.LocationID}}
		}
		mutate(&row.LocationVersion)
		row.UpdatedAt = s.now()
		row.rev++
		return put(s, s.versions, t.versions, k, row, expected, scope.String())
	})
}

func itemsOf(ctx context.Context) *change[itemKey, *ledger.InventoryItem] {
	if t := getTxn(ctx); t != nil {
		return t.items
	}
	return nil
}

func versionsOf(ctx context.Context) *change[scopeKey, *lvRow] {
	if t := getTxn(ctx); t != nil {
		return t.versions
	}
	return nil
}
