// Package recipe_repo provides the PostgreSQL implementation of recipe.Repository.
// Ingredients live in a JSONB array; reads accept both the canonical inventoryItemId
// field and the legacy id field.
package recipe_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/domain/recipe"
	"larder/internal/infrastructure/storage/postgres"
	"larder/pkg/logger"
)

const menuItemsTable = "menu_items"

var menuColumns = []string{
	"tenant_id", "location_id", "menu_item_id", "name", "ingredients",
	"total_cost", "price", "active", "cost_version", "version", "created_at", "updated_at",
}

// ingredientRefSQL extracts the effective reference of a JSONB ingredient element e.
const ingredientRefSQL = "coalesce(nullif(e->>'inventoryItemId', ''), e->>'id')"

// Repo implements recipe.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// New creates the menu item repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ recipe.Repository = (*Repo)(nil)

func (r *Repo) GetMenuItem(ctx context.Context, scope tenant.Scope, menuItemID string) (*recipe.MenuItem, error) {
	q := r.builder.Select(menuColumns...).From(menuItemsTable).
		Where(squirrel.Eq{"tenant_id": scope.TenantID, "location_id": scope.LocationID, "menu_item_id": menuItemID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var menu recipe.MenuItem
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &menu, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("menu_item", menuItemID)
		}
		return nil, fmt.Errorf("select menu item: %w", err)
	}
	return &menu, nil
}

func (r *Repo) GetMenuItems(ctx context.Context, scope tenant.Scope, menuItemIDs []string) (map[string]*recipe.MenuItem, error) {
	out := make(map[string]*recipe.MenuItem, len(menuItemIDs))
	if len(menuItemIDs) == 0 {
		return out, nil
	}
	q := r.builder.Select(menuColumns...).From(menuItemsTable).
		Where(squirrel.Eq{"tenant_id": scope.TenantID, "location_id": scope.LocationID, "menu_item_id": menuItemIDs})

	menus, err := r.selectMany(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, m := range menus {
		out[m.MenuItemID] = m
	}
	return out, nil
}

func (r *Repo) ListMenuItemsByIngredients(ctx context.Context, scope tenant.Scope, itemIDs []string) ([]*recipe.MenuItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	q := r.builder.Select(menuColumns...).From(menuItemsTable + " m").
		Where(squirrel.Eq{"tenant_id": scope.TenantID, "location_id": scope.LocationID}).
		Where(squirrel.Expr(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(m.ingredients) e WHERE "+ingredientRefSQL+" = ANY(?))",
			itemIDs,
		)).
		OrderBy("menu_item_id")
	return r.selectMany(ctx, q)
}

func (r *Repo) CreateMenuItem(ctx context.Context, menu *recipe.MenuItem) error {
	menu.Touch(r.now())
	menu.CanonicalizeRefs()

	q := r.builder.Insert(menuItemsTable).Columns(menuColumns...).Values(
		menu.TenantID, menu.LocationID, menu.MenuItemID, menu.Name, menu.Ingredients,
		menu.TotalCost, menu.Price, menu.Active, menu.CostVersion, int64(1), menu.CreatedAt, menu.UpdatedAt,
	).Suffix("ON CONFLICT (tenant_id, location_id, menu_item_id) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("insert menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("menu_item", menu.MenuItemID)
	}
	menu.Version = 1
	return nil
}

func (r *Repo) UpdateMenuItem(ctx context.Context, menu *recipe.MenuItem) error {
	menu.Touch(r.now())
	menu.CanonicalizeRefs()

	q := r.builder.Update(menuItemsTable).
		Set("name", menu.Name).
		Set("ingredients", menu.Ingredients).
		Set("total_cost", menu.TotalCost).
		Set("price", menu.Price).
		Set("active", menu.Active).
		Set("cost_version", menu.CostVersion).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", menu.UpdatedAt).
		Where(squirrel.Eq{
			"tenant_id":    menu.TenantID,
			"location_id":  menu.LocationID,
			"menu_item_id": menu.MenuItemID,
			"version":      menu.Version,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("menu_item", menu.MenuItemID)
	}
	menu.Version++
	return nil
}

// MigrateLegacyIngredientRefs rewrites every stored ingredient that only carries the legacy
// id field so it carries inventoryItemId instead. Returns the number of menu items touched.
func (r *Repo) MigrateLegacyIngredientRefs(ctx context.Context, tenantID string) (int64, error) {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		UPDATE `+menuItemsTable+` m
		SET ingredients = (
		        SELECT coalesce(jsonb_agg(
		            CASE WHEN coalesce(e->>'inventoryItemId', '') = '' AND coalesce(e->>'id', '') <> ''
		                 THEN (e - 'id') || jsonb_build_object('inventoryItemId', e->>'id')
		                 ELSE e - 'id'
		            END ORDER BY ord), '[]'::jsonb)
		        FROM jsonb_array_elements(m.ingredients) WITH ORDINALITY AS t(e, ord)
		    ),
		    version = version + 1,
		    updated_at = $2
		WHERE tenant_id = $1
		  AND EXISTS (SELECT 1 FROM jsonb_array_elements(m.ingredients) e WHERE e ? 'id')
	`, tenantID, r.now())
	if err != nil {
		return 0, fmt.Errorf("migrate legacy ingredient refs: %w", err)
	}
	logger.Info(ctx, "legacy ingredient references migrated", "tenant_id", tenantID, "menu_items", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// TenantsWithLegacyRefs lists the tenants that still store legacy ingredient references.
func (r *Repo) TenantsWithLegacyRefs(ctx context.Context) ([]string, error) {
	var tenants []string
	err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &tenants, `
		SELECT DISTINCT tenant_id FROM `+menuItemsTable+` m
		WHERE EXISTS (SELECT 1 FROM jsonb_array_elements(m.ingredients) e WHERE e ? 'id')
		ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants with legacy refs: %w", err)
	}
	return tenants, nil
}

func (r *Repo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]*recipe.MenuItem, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var menus []*recipe.MenuItem
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &menus, sql, args...); err != nil {
		return nil, fmt.Errorf("select menu items: %w", err)
	}
	return menus, nil
}
