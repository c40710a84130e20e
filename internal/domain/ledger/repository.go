package ledger

import (
	"context"

	"larder/internal/core/tenant"
)

// Repository persists inventory items, movements and location versions.
// Every method is scoped by (tenant, location); implementations never match across locations.
//
// Writes join the transaction carried in ctx when there is one.
type Repository interface {
	// GetItem returns NotFound when the item does not exist in the scope.
	GetItem(ctx context.Context, scope tenant.Scope, itemID string) (*InventoryItem, error)
	// GetItems returns the subset of itemIDs that exists in the scope.
	GetItems(ctx context.Context, scope tenant.Scope, itemIDs []string) (map[string]*InventoryItem, error)
	// FindItemByName matches NameKey(name) within the scope. NotFound when absent.
	FindItemByName(ctx context.Context, scope tenant.Scope, name string) (*InventoryItem, error)
	ListItems(ctx context.Context, scope tenant.Scope, filter ItemFilter) ([]*InventoryItem, error)

	// CreateItem inserts a new item and sets item.Version to 1.
	// A concurrent insert of the same key is a ConcurrentModification.
	CreateItem(ctx context.Context, item *InventoryItem) error
	// UpdateItem writes item if the stored version equals item.Version, then increments item.Version.
	// A version mismatch is a ConcurrentModification.
	UpdateItem(ctx context.Context, item *InventoryItem) error

	AppendMovements(ctx context.Context, movements []Movement) error
	ListMovements(ctx context.Context, scope tenant.Scope, filter MovementFilter) ([]Movement, error)

	// GetLocationVersion returns the zero version for a location never written.
	GetLocationVersion(ctx context.Context, scope tenant.Scope) (LocationVersion, error)
	BumpLocationVersion(ctx context.Context, scope tenant.Scope, bump VersionBump) (LocationVersion, error)
	// AdvanceSyncedCostVersion raises SyncedCostVersion to version; it never lowers it.
	AdvanceSyncedCostVersion(ctx context.Context, scope tenant.Scope, version int64) error
}
