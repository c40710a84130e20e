// Package purchasing handles purchase orders and their delivery into stock.
package purchasing

import (
	"context"
	"strings"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/entity"
	"larder/internal/core/types"
)

// Status of a purchase order. Transitions only move forward: draft → submitted → delivered.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusDelivered Status = "delivered"
)

// OrderNumberPrefix is the numerator prefix of purchase orders.
const OrderNumberPrefix = "PO"

// Line is one ordered item.
type Line struct {
	ItemName string `json:"itemName"`
	// InventoryItemID is optional on input; delivery fills it with the resolved item.
	InventoryItemID  string         `json:"inventoryItemId,omitempty"`
	Unit             string         `json:"unit,omitempty"`
	OrderedQty       types.Quantity `json:"orderedQty"`
	UnitPrice        types.Money    `json:"unitPrice"`
	QuantityReceived types.Quantity `json:"quantityReceived"`
}

// Amount is OrderedQty × UnitPrice.
func (l Line) Amount() types.Money {
	return l.OrderedQty.MulMoney(l.UnitPrice)
}

// PurchaseOrder is an order to a supplier for one location.
type PurchaseOrder struct {
	entity.Base

	TenantID    string     `db:"tenant_id" json:"tenantId"`
	LocationID  string     `db:"location_id" json:"locationId"`
	POID        string     `db:"po_id" json:"poId"`
	OrderNumber string     `db:"order_number" json:"orderNumber"`
	Supplier    string     `db:"supplier" json:"supplier"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
	Lines       []Line     `db:"lines" json:"lines"`
	Status      Status     `db:"status" json:"status"`
	CreatedBy   string     `db:"created_by" json:"createdBy,omitempty"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	DeliveredBy string     `db:"delivered_by" json:"deliveredBy,omitempty"`
}

// GetLocationID is nil-safe: a nil PurchaseOrder has no location.
func (p *PurchaseOrder) GetLocationID() string {
	if p == nil {
		return ""
	}
	return p.LocationID
}

func (p *PurchaseOrder) EntityName() string { return "purchase_order" }

func (p *PurchaseOrder) EntityKey() string {
	if p == nil {
		return ""
	}
	return p.POID
}

// Validate checks the order shape.
func (p PurchaseOrder) Validate(ctx context.Context) error {
	if p.LocationID == "" {
		return apperror.NewMissingLocation(p.EntityName(), p.POID)
	}
	if strings.TrimSpace(p.Supplier) == "" {
		return apperror.NewValidation("supplier is required")
	}
	if len(p.Lines) == 0 {
		return apperror.NewValidation("purchase order has no lines")
	}
	for idx, line := range p.Lines {
		if strings.TrimSpace(line.ItemName) == "" && strings.TrimSpace(line.InventoryItemID) == "" {
			return apperror.NewValidation("line needs an item name or inventory item id").
				WithDetail("line", idx)
		}
		if !line.OrderedQty.IsPositive() {
			return apperror.NewValidation("ordered quantity must be positive").
				WithDetail("line", idx)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("line", idx)
		}
	}
	return nil
}

// Total is the sum of line amounts.
func (p PurchaseOrder) Total() types.Money {
	total := types.Zero()
	for _, line := range p.Lines {
		total = total.Add(line.Amount())
	}
	return total
}

// Submit moves a draft to submitted.
func (p *PurchaseOrder) Submit(now time.Time) error {
	if p.Status != StatusDraft {
		return apperror.NewInvalidTransition(p.EntityName(), string(p.Status), string(StatusSubmitted))
	}
	p.Status = StatusSubmitted
	p.SubmittedAt = &now
	p.Touch(now)
	return nil
}

// MarkDelivered moves a submitted order to delivered.
func (p *PurchaseOrder) MarkDelivered(by string, now time.Time) error {
	switch p.Status {
	case StatusDelivered:
		return apperror.NewAlreadyDelivered(p.POID)
	case StatusSubmitted:
	default:
		return apperror.NewInvalidTransition(p.EntityName(), string(p.Status), string(StatusDelivered))
	}
	p.Status = StatusDelivered
	p.DeliveredBy = by
	p.DeliveredAt = &now
	p.Touch(now)
	return nil
}
