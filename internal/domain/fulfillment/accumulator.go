// Package fulfillment turns sold menu items into ingredient stock deductions.
package fulfillment

import (
	"sort"
	"strings"

	"larder/internal/core/types"
	"larder/internal/domain/ledger"
	"larder/internal/domain/recipe"
)

// SaleLine is one sold menu item of an order.
type SaleLine struct {
	MenuItemID string         `json:"menuItemId"`
	Quantity   types.Quantity `json:"quantity"`
}

// Contribution records how much one sale line added to one inventory item total.
type Contribution struct {
	MenuItemID      string         `json:"menuItemId"`
	InventoryItemID string         `json:"inventoryItemId"`
	Quantity        types.Quantity `json:"quantity"`
}

// Reasons attached to IngredientUnresolvedWarning.
const (
	UnresolvedEmptyReference = "empty_reference"
	UnresolvedItemNotFound   = "item_not_found"
	UnresolvedMenuNotFound   = "menu_item_not_found"
)

// IngredientUnresolvedWarning is reported for ingredients that point nowhere.
// They are left out of the totals; the order still goes through.
type IngredientUnresolvedWarning struct {
	MenuItemID      string `json:"menuItemId"`
	InventoryItemID string `json:"inventoryItemId,omitempty"`
	IngredientName  string `json:"ingredientName,omitempty"`
	Reason          string `json:"reason"`
}

// RecipeLookup holds the menu items of one location by id.
type RecipeLookup map[string]*recipe.MenuItem

// ItemLookup holds the inventory items of one location by id.
type ItemLookup map[string]*ledger.InventoryItem

// Accumulation is the full deduction set of an order, computed before anything is written.
type Accumulation struct {
	Totals        map[string]types.Quantity
	Contributions []Contribution
	Unresolved    []IngredientUnresolvedWarning
}

// ItemIDs returns the ids of Totals in ascending order.
func (a Accumulation) ItemIDs() []string {
	ids := make([]string, 0, len(a.Totals))
	for itemID := range a.Totals {
		ids = append(ids, itemID)
	}
	sort.Strings(ids)
	return ids
}

// Accumulate sums QuantityPerUnit × sale quantity per inventory item over every sale line.
// Several menu items sharing an ingredient add up; they never overwrite each other.
func Accumulate(lines []SaleLine, recipes RecipeLookup, items ItemLookup) Accumulation {
	acc := Accumulation{Totals: make(map[string]types.Quantity)}

	for _, line := range lines {
		menu, ok := recipes[line.MenuItemID]
		if !ok || menu == nil {
			acc.Unresolved = append(acc.Unresolved, IngredientUnresolvedWarning{
				MenuItemID: line.MenuItemID,
				Reason:     UnresolvedMenuNotFound,
			})
			continue
		}

		for _, ing := range menu.Ingredients {
			ref := ing.ItemRef()
			if ref == "" {
				acc.Unresolved = append(acc.Unresolved, IngredientUnresolvedWarning{
					MenuItemID:     menu.MenuItemID,
					IngredientName: strings.TrimSpace(ing.Name),
					Reason:         UnresolvedEmptyReference,
				})
				continue
			}
			if _, ok := items[ref]; !ok {
				acc.Unresolved = append(acc.Unresolved, IngredientUnresolvedWarning{
					MenuItemID:      menu.MenuItemID,
					InventoryItemID: ref,
					IngredientName:  strings.TrimSpace(ing.Name),
					Reason:          UnresolvedItemNotFound,
				})
				continue
			}

			qty := ing.QuantityPerUnit.Mul(line.Quantity)
			if qty.IsZero() {
				continue
			}
			acc.Totals[ref] += qty
			acc.Contributions = append(acc.Contributions, Contribution{
				MenuItemID:      menu.MenuItemID,
				InventoryItemID: ref,
				Quantity:        qty,
			})
		}
	}

	return acc
}
