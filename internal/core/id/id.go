// Package id generates identifiers for ledger records (movements, purchase orders, outbox rows).
// UUIDv7 is time-ordered, so movement ids sort by creation time.
package id

import (
	"github.com/google/uuid"
)

// ID is the UUID type used across entities.
type ID = uuid.UUID

// New generates a UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// NewString returns New() in canonical string form.
func NewString() string {
	return New().String()
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error. Tests only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is the zero UUID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}
