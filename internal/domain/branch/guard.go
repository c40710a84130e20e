// Package branch enforces location isolation: a record may only be read or written
// by an operation scoped to the location it belongs to.
package branch

import (
	"strings"

	"larder/internal/core/apperror"
	"larder/internal/core/entity"
)

// AssertLocation fails with a BranchIsolation error when the record's location is
// empty or differs from expectedLocationID. An empty expectation is a MissingLocation error.
// Located implementations must answer "" for a nil pointer receiver.
func AssertLocation(record entity.Located, expectedLocationID string) error {
	expected := strings.TrimSpace(expectedLocationID)
	if expected == "" {
		return apperror.NewMissingLocation("operation", nil)
	}
	if record == nil {
		return apperror.NewBranchIsolation("unknown", nil, expected, "")
	}

	actual := record.GetLocationID()
	if actual == "" || actual != expected {
		return apperror.NewBranchIsolation(record.EntityName(), record.EntityKey(), expected, actual)
	}
	return nil
}

// AssertAll checks every record and returns the first violation.
func AssertAll[T entity.Located](records []T, expectedLocationID string) error {
	for _, r := range records {
		if err := AssertLocation(r, expectedLocationID); err != nil {
			return err
		}
	}
	return nil
}
