package dto

import (
	"larder/internal/core/types"
	"larder/internal/domain/recipe"
)

// UpsertMenuItemRequest replaces a menu item and its recipe.
type UpsertMenuItemRequest struct {
	Name        string              `json:"name" binding:"required"`
	Price       types.Money         `json:"price"`
	Active      *bool               `json:"active"`
	Ingredients []recipe.Ingredient `json:"ingredients"`
}

// ToInput maps the request to a recipe upsert. Active defaults to true.
func (r UpsertMenuItemRequest) ToInput(menuItemID string) recipe.UpsertInput {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return recipe.UpsertInput{
		MenuItemID:  menuItemID,
		Name:        r.Name,
		Price:       r.Price,
		Active:      active,
		Ingredients: r.Ingredients,
	}
}
