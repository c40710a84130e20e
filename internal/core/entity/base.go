// Package entity holds the building blocks shared by ledger records.
package entity

import (
	"context"
	"time"
)

// Validatable is implemented by records that check their own invariants
// (without database access).
type Validatable interface {
	Validate(ctx context.Context) error
}

// Located is implemented by every record that belongs to a branch.
type Located interface {
	// GetLocationID returns the owning location; empty means the record is unscoped.
	GetLocationID() string
	// EntityName is used in error details ("inventory_item", "menu_item", ...).
	EntityName() string
	// EntityKey identifies the record within its location.
	EntityKey() string
}

// Base carries the optimistic-lock version and timestamps.
type Base struct {
	// Version is compared on every update and incremented by the store.
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// GetVersion returns the optimistic-lock version.
func (b Base) GetVersion() int64 {
	return b.Version
}

// Touch stamps the modification time. The first call also sets CreatedAt.
func (b *Base) Touch(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
