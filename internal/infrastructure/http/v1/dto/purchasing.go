package dto

import (
	"larder/internal/core/types"
	"larder/internal/domain/purchasing"
)

// PurchaseLineRequest is one ordered line.
type PurchaseLineRequest struct {
	ItemName        string         `json:"itemName" binding:"required"`
	InventoryItemID string         `json:"inventoryItemId"`
	Unit            string         `json:"unit"`
	OrderedQty      types.Quantity `json:"orderedQty"`
	UnitPrice       types.Money    `json:"unitPrice"`
}

// CreatePurchaseOrderRequest creates a draft purchase order.
type CreatePurchaseOrderRequest struct {
	LocationID string                `json:"locationId" binding:"required"`
	Supplier   string                `json:"supplier" binding:"required"`
	Notes      string                `json:"notes"`
	Lines      []PurchaseLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToInput maps the request to a purchasing create input.
func (r CreatePurchaseOrderRequest) ToInput() purchasing.CreateInput {
	lines := make([]purchasing.Line, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = purchasing.Line{
			ItemName:        l.ItemName,
			InventoryItemID: l.InventoryItemID,
			Unit:            l.Unit,
			OrderedQty:      l.OrderedQty,
			UnitPrice:       l.UnitPrice,
		}
	}
	return purchasing.CreateInput{
		LocationID: r.LocationID,
		Supplier:   r.Supplier,
		Notes:      r.Notes,
		Lines:      lines,
	}
}

// DeliverRequest delivers a submitted purchase order. Without receipts every line is
// received as ordered. DeliveredBy falls back to the request actor.
type DeliverRequest struct {
	DeliveredBy string                   `json:"deliveredBy"`
	Receipts    []purchasing.LineReceipt `json:"receipts"`
}
