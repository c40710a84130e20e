package memory

import (
	"context"

	"larder/internal/core/apperror"
	"larder/internal/domain/purchasing"
)

func (s *Store) GetOrder(ctx context.Context, tenantID, poID string) (*purchasing.PurchaseOrder, error) {
	po, ok := get(s, s.orders, ordersOf(ctx), orderKey{tenantID, poID})
	if !ok {
		return nil, apperror.NewNotFound("purchase_order", poID)
	}
	return po, nil
}

func (s *Store) CreateOrder(ctx context.Context, po *purchasing.PurchaseOrder) error {
	return s.write(ctx, func(t *txn) error {
		po.Version = 1
		err := put(s, s.orders, t.orders, orderKey{po.TenantID, po.POID}, po, -1, po.POID)
		if err != nil {
			po.Version = 0
		}
		return err
	})
}

func (s *Store) UpdateOrder(ctx context.Context, po *purchasing.PurchaseOrder) error {
	return s.write(ctx, func(t *txn) error {
		expected := po.Version
		po.Version++
		err := put(s, s.orders, t.orders, orderKey{po.TenantID, po.POID}, po, expected, po.POID)
		if err != nil {
			po.Version = expected
		}
		return err
	})
}

func ordersOf(ctx context.Context) *change[orderKey, *purchasing.PurchaseOrder] {
	if t := getTxn(ctx); t != nil {
		return t.orders
	}
	return nil
}
