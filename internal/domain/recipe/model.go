// Package recipe holds menu items and the ingredients they consume per unit sold.
package recipe

import (
	"context"
	"encoding/json"
	"strings"

	"larder/internal/core/apperror"
	"larder/internal/core/entity"
	"larder/internal/core/types"
)

// Ingredient is one recipe line: how much of an inventory item one unit of the menu item uses.
type Ingredient struct {
	InventoryItemID string         `json:"inventoryItemId,omitempty"`
	Name            string         `json:"name"`
	QuantityPerUnit types.Quantity `json:"quantity"`
	Unit            string         `json:"unit,omitempty"`
	UnitCost        types.Money    `json:"unitCost"`

	// LegacyID is the pre-migration reference field ("id"). Read-only.
	LegacyID string `json:"-"`
}

// UnmarshalJSON accepts both the canonical inventoryItemId field and the legacy id field.
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	type plain Ingredient
	var raw struct {
		plain
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Ingredient(raw.plain)
	i.LegacyID = raw.ID
	return nil
}

// ItemRef returns the inventory item the ingredient points to. The canonical field wins.
func (i Ingredient) ItemRef() string {
	if ref := strings.TrimSpace(i.InventoryItemID); ref != "" {
		return ref
	}
	return strings.TrimSpace(i.LegacyID)
}

// LineCost is QuantityPerUnit × UnitCost.
func (i Ingredient) LineCost() types.Money {
	return i.QuantityPerUnit.MulMoney(i.UnitCost)
}

// MenuItem is a sellable product of a location together with its recipe.
type MenuItem struct {
	entity.Base

	TenantID    string       `db:"tenant_id" json:"tenantId"`
	LocationID  string       `db:"location_id" json:"locationId"`
	MenuItemID  string       `db:"menu_item_id" json:"menuItemId"`
	Name        string       `db:"name" json:"name"`
	Ingredients []Ingredient `db:"ingredients" json:"ingredients"`
	TotalCost   types.Money  `db:"total_cost" json:"totalCost"`
	Price       types.Money  `db:"price" json:"price"`
	Active      bool         `db:"active" json:"active"`

	// CostVersion is the location cost version the ingredient costs were last synced at.
	CostVersion int64 `db:"cost_version" json:"costVersion"`
}

// GetLocationID is nil-safe: a nil MenuItem has no location.
func (m *MenuItem) GetLocationID() string {
	if m == nil {
		return ""
	}
	return m.LocationID
}

func (m *MenuItem) EntityName() string { return "menu_item" }

func (m *MenuItem) EntityKey() string {
	if m == nil {
		return ""
	}
	return m.MenuItemID
}

// Validate checks the recipe shape.
func (m MenuItem) Validate(ctx context.Context) error {
	if m.TenantID == "" || m.LocationID == "" {
		return apperror.NewMissingLocation(m.EntityName(), m.MenuItemID)
	}
	if strings.TrimSpace(m.MenuItemID) == "" {
		return apperror.NewValidation("menu item id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return apperror.NewValidation("menu item name is required").
			WithDetail("menu_item_id", m.MenuItemID)
	}
	if m.Price.IsNegative() {
		return apperror.NewValidation("price cannot be negative").
			WithDetail("menu_item_id", m.MenuItemID)
	}
	for idx, ing := range m.Ingredients {
		if ing.ItemRef() == "" {
			return apperror.NewValidation("ingredient has no inventory item reference").
				WithDetail("menu_item_id", m.MenuItemID).
				WithDetail("line", idx+1)
		}
		if ing.QuantityPerUnit.IsNegative() {
			return apperror.NewValidation("ingredient quantity cannot be negative").
				WithDetail("menu_item_id", m.MenuItemID).
				WithDetail("line", idx+1)
		}
		if ing.UnitCost.IsNegative() {
			return apperror.NewValidation("ingredient unit cost cannot be negative").
				WithDetail("menu_item_id", m.MenuItemID).
				WithDetail("line", idx+1)
		}
	}
	return nil
}

// RecomputeTotal sets TotalCost to the sum of the ingredient line costs.
func (m *MenuItem) RecomputeTotal() types.Money {
	total := types.Zero()
	for _, ing := range m.Ingredients {
		total = total.Add(ing.LineCost())
	}
	m.TotalCost = total
	return total
}

// References reports whether any ingredient points to itemID.
func (m MenuItem) References(itemID string) bool {
	for _, ing := range m.Ingredients {
		if ing.ItemRef() == itemID {
			return true
		}
	}
	return false
}

// Margin is Price minus TotalCost.
func (m MenuItem) Margin() types.Money {
	return m.Price.Sub(m.TotalCost)
}

// CanonicalizeRefs moves legacy ids into InventoryItemID. Reports whether anything changed.
func (m *MenuItem) CanonicalizeRefs() bool {
	changed := false
	for idx := range m.Ingredients {
		ing := &m.Ingredients[idx]
		if ing.InventoryItemID == "" && ing.LegacyID != "" {
			ing.InventoryItemID = ing.LegacyID
			changed = true
		}
		ing.LegacyID = ""
	}
	return changed
}
