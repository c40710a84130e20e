package dto

import (
	"larder/internal/core/types"
	"larder/internal/domain/ledger"
)

// EnsureItemRequest registers an inventory item in a location.
type EnsureItemRequest struct {
	ItemID string `json:"itemId"`
	Name   string `json:"name" binding:"required"`
	Unit   string `json:"unit"`
}

// ToSpec maps the request to a ledger item spec.
func (r EnsureItemRequest) ToSpec() ledger.ItemSpec {
	return ledger.ItemSpec{ItemID: r.ItemID, Name: r.Name, Unit: r.Unit}
}

// EnsureItemResponse reports whether the item was created.
type EnsureItemResponse struct {
	Item    *ledger.InventoryItem `json:"item"`
	Created bool                  `json:"created"`
}

// AdjustmentRequest records a stock take.
type AdjustmentRequest struct {
	CountedQuantity types.Quantity `json:"countedQuantity"`
	Reference       string         `json:"reference"`
}

// MovementQuery filters movement history.
type MovementQuery struct {
	Reason  string `form:"reason"`
	RefType string `form:"refType"`
	RefID   string `form:"refId"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ToFilter maps the query to a ledger filter.
func (q MovementQuery) ToFilter(itemID string) ledger.MovementFilter {
	return ledger.MovementFilter{
		ItemID:  itemID,
		Reason:  ledger.Reason(q.Reason),
		RefType: q.RefType,
		RefID:   q.RefID,
		Limit:   q.Limit,
	}
}
