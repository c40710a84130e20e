// Package tenant carries the tenant of a request and the (tenant, location) partition key.
package tenant

import (
	"context"
	"errors"
	"strings"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
)

// Errors for context operations.
var (
	ErrNoTenantInContext = errors.New("tenant not found in context")
)

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// GetTenantID returns tenant id or empty string.
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// RequireTenantID returns the tenant id or ErrNoTenantInContext.
func RequireTenantID(ctx context.Context) (string, error) {
	v := GetTenantID(ctx)
	if v == "" {
		return "", ErrNoTenantInContext
	}
	return v, nil
}

// Scope is the partition every ledger read and write is keyed by.
type Scope struct {
	TenantID   string
	LocationID string
}

// ScopeFromContext builds a Scope from the context tenant and the given location.
func ScopeFromContext(ctx context.Context, locationID string) (Scope, error) {
	tenantID, err := RequireTenantID(ctx)
	if err != nil {
		return Scope{}, err
	}
	return Scope{TenantID: tenantID, LocationID: strings.TrimSpace(locationID)}, nil
}

// Valid reports whether both parts of the key are set.
func (s Scope) Valid() bool {
	return s.TenantID != "" && s.LocationID != ""
}

func (s Scope) String() string {
	return s.TenantID + "/" + s.LocationID
}
