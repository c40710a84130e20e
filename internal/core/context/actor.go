// Package context carries request-scoped values (trace and acting user).
package context

import (
	"context"
)

// Actor identifies who performs an operation. Authentication happens upstream;
// the core only records the identifier on movements and audit entries.
type Actor struct {
	ActorID  string
	TenantID string
}

type actorKey struct{}

// WithActor adds Actor to context.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor returns Actor from context or nil.
func GetActor(ctx context.Context) *Actor {
	if v, ok := ctx.Value(actorKey{}).(*Actor); ok {
		return v
	}
	return nil
}

// GetActorID returns the actor id or empty string.
func GetActorID(ctx context.Context) string {
	if a := GetActor(ctx); a != nil {
		return a.ActorID
	}
	return ""
}
