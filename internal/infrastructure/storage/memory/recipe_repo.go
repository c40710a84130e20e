package memory

import (
	"context"
	"sort"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/domain/recipe"
)

func (s *Store) GetMenuItem(ctx context.Context, scope tenant.Scope, menuItemID string) (*recipe.MenuItem, error) {
	menu, ok := get(s, s.menus, menusOf(ctx), menuKey{scope.TenantID, scope.LocationID, menuItemID})
	if !ok {
		return nil, apperror.NewNotFound("menu_item", menuItemID)
	}
	return menu, nil
}

func (s *Store) GetMenuItems(ctx context.Context, scope tenant.Scope, menuItemIDs []string) (map[string]*recipe.MenuItem, error) {
	out := make(map[string]*recipe.MenuItem, len(menuItemIDs))
	ch := menusOf(ctx)
	for _, menuItemID := range menuItemIDs {
		if menu, ok := get(s, s.menus, ch, menuKey{scope.TenantID, scope.LocationID, menuItemID}); ok {
			out[menuItemID] = menu
		}
	}
	return out, nil
}

func (s *Store) ListMenuItemsByIngredients(ctx context.Context, scope tenant.Scope, itemIDs []string) ([]*recipe.MenuItem, error) {
	out := scan(s, s.menus, menusOf(ctx), func(k menuKey, v *recipe.MenuItem) bool {
		if k.tenant != scope.TenantID || k.location != scope.LocationID {
			return false
		}
		for _, itemID := range itemIDs {
			if v.References(itemID) {
				return true
			}
		}
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MenuItemID < out[j].MenuItemID })
	return out, nil
}

func (s *Store) CreateMenuItem(ctx context.Context, menu *recipe.MenuItem) error {
	return s.write(ctx, func(t *txn) error {
		menu.Version = 1
		err := put(s, s.menus, t.menus, menuKey{menu.TenantID, menu.LocationID, menu.MenuItemID}, menu, -1, menu.MenuItemID)
		if err != nil {
			menu.Version = 0
		}
		return err
	})
}

func (s *Store) UpdateMenuItem(ctx context.Context, menu *recipe.MenuItem) error {
	return s.write(ctx, func(t *txn) error {
		expected := menu.Version
		menu.Version++
		err := put(s, s.menus, t.menus, menuKey{menu.TenantID, menu.LocationID, menu.MenuItemID}, menu, expected, menu.MenuItemID)
		if err != nil {
			menu.Version = expected
		}
		return err
	})
}

func menusOf(ctx context.Context) *change[menuKey, *recipe.MenuItem] {
	if t := getTxn(ctx); t != nil {
		return t.menus
	}
	return nil
}
