package recipe

import (
	"context"

	"larder/internal/core/tenant"
)

// Repository persists menu items. Lookups are scoped by (tenant, location).
type Repository interface {
	GetMenuItem(ctx context.Context, scope tenant.Scope, menuItemID string) (*MenuItem, error)
	// GetMenuItems returns the subset of ids that exists in the scope.
	GetMenuItems(ctx context.Context, scope tenant.Scope, menuItemIDs []string) (map[string]*MenuItem, error)
	// ListMenuItemsByIngredients returns menu items of the scope whose recipe references
	// any of itemIDs, through either the canonical or the legacy field.
	ListMenuItemsByIngredients(ctx context.Context, scope tenant.Scope, itemIDs []string) ([]*MenuItem, error)

	CreateMenuItem(ctx context.Context, item *MenuItem) error
	// UpdateMenuItem is a compare-and-set on Version; it increments item.Version on success.
	UpdateMenuItem(ctx context.Context, item *MenuItem) error
}
