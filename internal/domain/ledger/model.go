// Package ledger is the stock ledger: the only owner of current stock and cost per unit
// for an item, keyed by (tenant, location, item).
package ledger

import (
	"context"
	"strings"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/entity"
	"larder/internal/core/id"
	"larder/internal/core/types"
)

// Reason explains why stock moved.
type Reason string

const (
	ReasonSale       Reason = "sale"
	ReasonDelivery   Reason = "delivery"
	ReasonAdjustment Reason = "adjustment"
)

// Reference types recorded on movements.
const (
	RefTypeOrder         = "order"
	RefTypePurchaseOrder = "purchase_order"
	RefTypeStockTake     = "stock_take"
)

// InventoryItem is the stock and cost record of one item in one location.
// Items with the same name in different locations are different records.
type InventoryItem struct {
	entity.Base

	TenantID     string         `db:"tenant_id" json:"tenantId"`
	LocationID   string         `db:"location_id" json:"locationId"`
	ItemID       string         `db:"item_id" json:"itemId"`
	Name         string         `db:"name" json:"name"`
	Unit         string         `db:"unit" json:"unit"`
	CurrentStock types.Quantity `db:"current_stock" json:"currentStock"`
	CostPerUnit  types.Money    `db:"cost_per_unit" json:"costPerUnit"`
	MinStock     types.Quantity `db:"min_stock" json:"minStock"`
	MaxStock     types.Quantity `db:"max_stock" json:"maxStock"`
	Active       bool           `db:"active" json:"active"`

	// CostVersion is the location cost version at which CostPerUnit last changed.
	CostVersion int64 `db:"cost_version" json:"costVersion"`
}

// GetLocationID is nil-safe: a nil InventoryItem has no location.
func (i *InventoryItem) GetLocationID() string {
	if i == nil {
		return ""
	}
	return i.LocationID
}

func (i *InventoryItem) EntityName() string { return "inventory_item" }

func (i *InventoryItem) EntityKey() string {
	if i == nil {
		return ""
	}
	return i.ItemID
}

// Validate checks the non-negativity invariants.
func (i InventoryItem) Validate(ctx context.Context) error {
	if i.TenantID == "" || i.LocationID == "" {
		return apperror.NewMissingLocation(i.EntityName(), i.ItemID)
	}
	if strings.TrimSpace(i.ItemID) == "" {
		return apperror.NewValidation("item id is required")
	}
	if i.CurrentStock.IsNegative() {
		return apperror.NewValidation("current stock cannot be negative").
			WithDetail("item_id", i.ItemID).
			WithDetail("current_stock", i.CurrentStock)
	}
	if i.CostPerUnit.IsNegative() {
		return apperror.NewValidation("cost per unit cannot be negative").
			WithDetail("item_id", i.ItemID)
	}
	return nil
}

// NameKey is the normalized name used for location-scoped lookups.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Movement is one append-only audit record of a stock change.
type Movement struct {
	ID                  id.ID          `db:"id" json:"id"`
	TenantID            string         `db:"tenant_id" json:"tenantId"`
	LocationID          string         `db:"location_id" json:"locationId"`
	ItemID              string         `db:"item_id" json:"itemId"`
	DeltaQuantity       types.Quantity `db:"delta_quantity" json:"deltaQuantity"`
	Reason              Reason         `db:"reason" json:"reason"`
	PreviousStock       types.Quantity `db:"previous_stock" json:"previousStock"`
	NewStock            types.Quantity `db:"new_stock" json:"newStock"`
	PreviousCostPerUnit types.Money    `db:"previous_cost_per_unit" json:"previousCostPerUnit"`
	NewCostPerUnit      types.Money    `db:"new_cost_per_unit" json:"newCostPerUnit"`
	CostChanged         bool           `db:"cost_changed" json:"costChanged"`
	RefType             string         `db:"ref_type" json:"refType,omitempty"`
	RefID               string         `db:"ref_id" json:"refId,omitempty"`
	Actor               string         `db:"actor" json:"actor,omitempty"`
	Timestamp           time.Time      `db:"created_at" json:"timestamp"`
}

// MovementMeta is what the caller knows about why a mutation happens.
type MovementMeta struct {
	RefType string
	RefID   string
	Actor   string
}

// MovementFilter narrows movement history queries. Zero fields are ignored.
type MovementFilter struct {
	ItemID  string
	Reason  Reason
	RefType string
	RefID   string
	Limit   int
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	// CostVersionAbove selects items whose cost changed after the given location cost version.
	CostVersionAbove *int64
	IncludeInactive  bool
}

// OversoldWarning is recorded when a deduction exceeds the stock on hand.
// Stock is floored at zero; the shortfall is kept for reconciliation.
type OversoldWarning struct {
	ItemID    string         `json:"itemId"`
	Requested types.Quantity `json:"requested"`
	Available types.Quantity `json:"available"`
	Shortfall types.Quantity `json:"shortfall"`
}

// CostChange is handed to cost propagation after a delivery changed an item's cost.
type CostChange struct {
	LocationID   string      `json:"locationId"`
	ItemID       string      `json:"itemId"`
	PreviousCost types.Money `json:"previousCost"`
	NewCost      types.Money `json:"newCost"`
	CostVersion  int64       `json:"costVersion"`
}

// LocationVersion is the per-(tenant, location) last-write version.
// StockVersion moves on every stock write, CostVersion on every cost change.
// SyncedCostVersion is the highest CostVersion whose menu costs have been propagated.
type LocationVersion struct {
	TenantID          string    `db:"tenant_id" json:"tenantId"`
	LocationID        string    `db:"location_id" json:"locationId"`
	StockVersion      int64     `db:"stock_version" json:"stockVersion"`
	CostVersion       int64     `db:"cost_version" json:"costVersion"`
	SyncedCostVersion int64     `db:"synced_cost_version" json:"syncedCostVersion"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// CostsSynchronized reports whether every cost change has reached the menu items.
func (v LocationVersion) CostsSynchronized() bool {
	return v.SyncedCostVersion >= v.CostVersion
}

// VersionBump selects which counters BumpLocationVersion increments.
type VersionBump struct {
	Stock bool
	Cost  bool
}
