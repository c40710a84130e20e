// Package purchase_repo provides the PostgreSQL implementation of purchasing.Repository.
package purchase_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/domain/purchasing"
	"larder/internal/infrastructure/storage/postgres"
)

const ordersTable = "purchase_orders"

var orderColumns = []string{
	"tenant_id", "po_id", "location_id", "order_number", "supplier", "notes", "lines",
	"status", "created_by", "submitted_at", "delivered_at", "delivered_by",
	"version", "created_at", "updated_at",
}

// Repo implements purchasing.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// New creates the purchase order repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ purchasing.Repository = (*Repo)(nil)

func (r *Repo) GetOrder(ctx context.Context, tenantID, poID string) (*purchasing.PurchaseOrder, error) {
	sql, args, err := r.builder.Select(orderColumns...).From(ordersTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "po_id": poID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var po purchasing.PurchaseOrder
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &po, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase_order", poID)
		}
		return nil, fmt.Errorf("select purchase order: %w", err)
	}
	return &po, nil
}

func (r *Repo) CreateOrder(ctx context.Context, po *purchasing.PurchaseOrder) error {
	po.Touch(r.now())

	sql, args, err := r.builder.Insert(ordersTable).Columns(orderColumns...).Values(
		po.TenantID, po.POID, po.LocationID, po.OrderNumber, po.Supplier, po.Notes, po.Lines,
		po.Status, po.CreatedBy, po.SubmittedAt, po.DeliveredAt, po.DeliveredBy,
		int64(1), po.CreatedAt, po.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperror.NewDuplicate("purchase_order", "order_number", po.OrderNumber).WithCause(err)
		}
		return fmt.Errorf("insert purchase order: %w", err)
	}
	po.Version = 1
	return nil
}

// UpdateOrder is a compare-and-set on version. Two deliveries racing on the same
// order cannot both pass it.
func (r *Repo) UpdateOrder(ctx context.Context, po *purchasing.PurchaseOrder) error {
	po.Touch(r.now())

	sql, args, err := r.builder.Update(ordersTable).
		Set("location_id", po.LocationID).
		Set("supplier", po.Supplier).
		Set("notes", po.Notes).
		Set("lines", po.Lines).
		Set("status", po.Status).
		Set("submitted_at", po.SubmittedAt).
		Set("delivered_at", po.DeliveredAt).
		Set("delivered_by", po.DeliveredBy).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", po.UpdatedAt).
		Where(squirrel.Eq{"tenant_id": po.TenantID, "po_id": po.POID, "version": po.Version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("purchase_order", po.POID)
	}
	po.Version++
	return nil
}
