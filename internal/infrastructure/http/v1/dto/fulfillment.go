package dto

import (
	"larder/internal/core/types"
	"larder/internal/domain/fulfillment"
)

// SaleLineRequest is one sold menu item.
type SaleLineRequest struct {
	MenuItemID string         `json:"menuItemId" binding:"required"`
	Quantity   types.Quantity `json:"quantity"`
}

// DeductRequest is the body of an order deduction.
type DeductRequest struct {
	Lines []SaleLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToSaleLines maps the request to fulfillment sale lines.
func (r DeductRequest) ToSaleLines() []fulfillment.SaleLine {
	out := make([]fulfillment.SaleLine, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = fulfillment.SaleLine{MenuItemID: l.MenuItemID, Quantity: l.Quantity}
	}
	return out
}
