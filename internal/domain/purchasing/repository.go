package purchasing

import (
	"context"
)

// Repository persists purchase orders.
type Repository interface {
	// GetOrder finds an order by id within the tenant. NotFound when absent.
	GetOrder(ctx context.Context, tenantID, poID string) (*PurchaseOrder, error)
	// CreateOrder inserts a new order and sets Version to 1.
	CreateOrder(ctx context.Context, po *PurchaseOrder) error
	// UpdateOrder is a compare-and-set on Version; it increments po.Version on success.
	UpdateOrder(ctx context.Context, po *PurchaseOrder) error
}
