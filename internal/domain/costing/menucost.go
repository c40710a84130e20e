package costing

import (
	"context"
	"fmt"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/internal/domain/recipe"
	"larder/pkg/logger"
)

// IngredientCost is one priced recipe line.
type IngredientCost struct {
	InventoryItemID string         `json:"inventoryItemId"`
	Name            string         `json:"name"`
	QuantityPerUnit types.Quantity `json:"quantity"`
	UnitCost        types.Money    `json:"unitCost"`
	LineCost        types.Money    `json:"lineCost"`
}

// MenuCost is the cost view of a menu item.
type MenuCost struct {
	LocationID  string           `json:"locationId"`
	MenuItemID  string           `json:"menuItemId"`
	Name        string           `json:"name"`
	TotalCost   types.Money      `json:"totalCost"`
	Price       types.Money      `json:"price"`
	Margin      types.Money      `json:"margin"`
	Ingredients []IngredientCost `json:"ingredients"`
	CostVersion int64            `json:"costVersion"`
	// Synchronized is true when TotalCost reflects every ingredient cost change of the location.
	Synchronized bool `json:"synchronized"`
	// Recomputed is true when the cost was computed from current item costs on this request.
	Recomputed bool `json:"recomputed"`
}

// CostCache stores computed menu costs by key. Misses return (nil, false, nil).
type CostCache interface {
	Get(ctx context.Context, key string) (*MenuCost, bool, error)
	Set(ctx context.Context, key string, cost *MenuCost) error
}

// CacheKey identifies a menu cost for one state of the location and of the menu item.
func CacheKey(scope tenant.Scope, costVersion int64, menuItemID string, menuVersion int64) string {
	return fmt.Sprintf("menucost:%s:%s:%d:%s:%d", scope.TenantID, scope.LocationID, costVersion, menuItemID, menuVersion)
}

// GetMenuItemCost returns the cost of a menu item. When the stored total may be stale it is
// recomputed from the current item costs and written back unless it moved within epsilon.
func (e *Engine) GetMenuItemCost(ctx context.Context, locationID, menuItemID string) (*MenuCost, error) {
	scope, err := tenant.ScopeFromContext(ctx, locationID)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}
	if scope.LocationID == "" {
		return nil, apperror.NewMissingLocation("menu_item", menuItemID)
	}

	menu, err := e.recipes.GetMenuItem(ctx, scope, menuItemID)
	if err != nil {
		return nil, err
	}
	if err := branch.AssertLocation(menu, scope.LocationID); err != nil {
		return nil, err
	}
	lv, err := e.store.LocationVersion(ctx, scope)
	if err != nil {
		return nil, err
	}

	if lv.CostsSynchronized() || menu.CostVersion >= lv.CostVersion {
		return storedCost(menu, true), nil
	}

	key := CacheKey(scope, lv.CostVersion, menu.MenuItemID, menu.Version)
	v, err, _ := e.group.Do(key, func() (any, error) {
		if cached := e.cacheGet(ctx, key); cached != nil {
			return cached, nil
		}
		cost, err := e.recompute(ctx, scope, menu, lv)
		if err != nil {
			return nil, err
		}
		e.cacheSet(ctx, key, cost)
		return cost, nil
	})
	if err != nil {
		return nil, err
	}
	cost := *v.(*MenuCost)
	return &cost, nil
}

func (e *Engine) recompute(ctx context.Context, scope tenant.Scope, menu *recipe.MenuItem, lv ledger.LocationVersion) (*MenuCost, error) {
	refs := make([]string, 0, len(menu.Ingredients))
	for _, ing := range menu.Ingredients {
		if ref := ing.ItemRef(); ref != "" {
			refs = append(refs, ref)
		}
	}
	items, err := e.store.Lookup(ctx, scope, refs)
	if err != nil {
		return nil, err
	}

	current := make(map[string]ledger.CostChange, len(items))
	for _, ing := range menu.Ingredients {
		item, ok := items[ing.ItemRef()]
		if !ok {
			logger.Warn(ctx, "menu item has unresolved ingredient, serving stored cost",
				"location_id", scope.LocationID,
				"menu_item_id", menu.MenuItemID,
				"ingredient", ing.Name,
				"inventory_item_id", ing.ItemRef(),
			)
			return storedCost(menu, false), nil
		}
		current[item.ItemID] = ledger.CostChange{
			LocationID:  scope.LocationID,
			ItemID:      item.ItemID,
			NewCost:     item.CostPerUnit,
			CostVersion: lv.CostVersion,
		}
	}

	update, err := e.rewriteMenu(ctx, scope, menu.MenuItemID, func(m *recipe.MenuItem) (bool, error) {
		return applyChanges(m, current, e.store.Epsilon())
	})
	if err != nil {
		return nil, err
	}

	// price the view from current costs whether or not a write happened
	view := *menu
	view.Ingredients = append([]recipe.Ingredient(nil), menu.Ingredients...)
	if _, err := applyChanges(&view, current, e.store.Epsilon()); err != nil {
		return nil, err
	}
	view.RecomputeTotal()
	if update != nil {
		view.CostVersion = lv.CostVersion
	}

	cost := storedCost(&view, true)
	cost.Recomputed = true
	return cost, nil
}

func storedCost(menu *recipe.MenuItem, synchronized bool) *MenuCost {
	cost := &MenuCost{
		LocationID:   menu.LocationID,
		MenuItemID:   menu.MenuItemID,
		Name:         menu.Name,
		TotalCost:    menu.TotalCost,
		Price:        menu.Price,
		Margin:       menu.Margin(),
		CostVersion:  menu.CostVersion,
		Synchronized: synchronized,
		Ingredients:  make([]IngredientCost, 0, len(menu.Ingredients)),
	}
	for _, ing := range menu.Ingredients {
		cost.Ingredients = append(cost.Ingredients, IngredientCost{
			InventoryItemID: ing.ItemRef(),
			Name:            ing.Name,
			QuantityPerUnit: ing.QuantityPerUnit,
			UnitCost:        ing.UnitCost,
			LineCost:        ing.LineCost(),
		})
	}
	return cost
}

func (e *Engine) cacheGet(ctx context.Context, key string) *MenuCost {
	if e.cache == nil {
		return nil
	}
	cost, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn(ctx, "menu cost cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	cacheLookups.WithLabelValues("hit").Inc()
	return cost
}

func (e *Engine) cacheSet(ctx context.Context, key string, cost *MenuCost) {
	if e.cache == nil {
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
	if err := e.cache.Set(ctx, key, cost); err != nil {
		logger.Warn(ctx, "menu cost cache write failed", "key", key, "error", err)
	}
}
