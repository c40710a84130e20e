// Package ledger_repo provides the PostgreSQL implementation of ledger.Repository.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/storage/postgres"
)

const (
	itemsTable     = "inventory_items"
	movementsTable = "inventory_movements"
	versionsTable  = "location_versions"
)

var itemColumns = postgres.Columns[ledger.InventoryItem]()

// Repo implements ledger.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	batch   *postgres.BatchWriter
	now     func() time.Time
}

// New creates the ledger repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		batch:   postgres.NewBatchWriter(txm),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ ledger.Repository = (*Repo)(nil)

func scoped(scope tenant.Scope) squirrel.Eq {
	return squirrel.Eq{"tenant_id": scope.TenantID, "location_id": scope.LocationID}
}

func (r *Repo) GetItem(ctx context.Context, scope tenant.Scope, itemID string) (*ledger.InventoryItem, error) {
	q := r.builder.Select(itemColumns...).From(itemsTable).
		Where(scoped(scope)).
		Where(squirrel.Eq{"item_id": itemID})

	item, err := r.selectOne(ctx, q)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("inventory_item", itemID)
		}
		return nil, err
	}
	return item, nil
}

func (r *Repo) GetItems(ctx context.Context, scope tenant.Scope, itemIDs []string) (map[string]*ledger.InventoryItem, error) {
	out := make(map[string]*ledger.InventoryItem, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	q := r.builder.Select(itemColumns...).From(itemsTable).
		Where(scoped(scope)).
		Where(squirrel.Eq{"item_id": itemIDs})

	items, err := r.selectMany(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ItemID] = item
	}
	return out, nil
}

func (r *Repo) FindItemByName(ctx context.Context, scope tenant.Scope, name string) (*ledger.InventoryItem, error) {
	q := r.builder.Select(itemColumns...).From(itemsTable).
		Where(scoped(scope)).
		Where(squirrel.Expr("lower(btrim(name)) = ?", ledger.NameKey(name))).
		OrderBy("item_id").
		Limit(1)

	item, err := r.selectOne(ctx, q)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("inventory_item", name)
		}
		return nil, err
	}
	return item, nil
}

func (r *Repo) ListItems(ctx context.Context, scope tenant.Scope, filter ledger.ItemFilter) ([]*ledger.InventoryItem, error) {
	q := r.builder.Select(itemColumns...).From(itemsTable).
		Where(scoped(scope)).
		OrderBy("item_id")
	if !filter.IncludeInactive {
		q = q.Where(squirrel.Eq{"active": true})
	}
	if filter.CostVersionAbove != nil {
		q = q.Where(squirrel.Gt{"cost_version": *filter.CostVersionAbove})
	}
	return r.selectMany(ctx, q)
}

func (r *Repo) CreateItem(ctx context.Context, item *ledger.InventoryItem) error {
	now := r.now()
	item.Touch(now)

	row := postgres.Row(item)
	row["version"] = int64(1)
	q := r.builder.Insert(itemsTable).SetMap(row).Suffix("ON CONFLICT (tenant_id, location_id, item_id) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("inventory_item", item.ItemID)
	}
	item.Version = 1
	return nil
}

func (r *Repo) UpdateItem(ctx context.Context, item *ledger.InventoryItem) error {
	item.Touch(r.now())

	q := r.builder.Update(itemsTable).
		Set("name", item.Name).
		Set("unit", item.Unit).
		Set("current_stock", item.CurrentStock).
		Set("cost_per_unit", item.CostPerUnit).
		Set("min_stock", item.MinStock).
		Set("max_stock", item.MaxStock).
		Set("active", item.Active).
		Set("cost_version", item.CostVersion).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", item.UpdatedAt).
		Where(squirrel.Eq{
			"tenant_id":   item.TenantID,
			"location_id": item.LocationID,
			"item_id":     item.ItemID,
			"version":     item.Version,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update inventory item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("inventory_item", item.ItemID)
	}
	item.Version++
	return nil
}

func (r *Repo) selectOne(ctx context.Context, q squirrel.SelectBuilder) (*ledger.InventoryItem, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var item ledger.InventoryItem
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("select inventory item: %w", err)
	}
	return &item, nil
}

func (r *Repo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]*ledger.InventoryItem, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var items []*ledger.InventoryItem
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select inventory items: %w", err)
	}
	return items, nil
}
