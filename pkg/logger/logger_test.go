package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appctx "larder/internal/core/context"
	"larder/internal/core/tenant"
)

func TestContextFields(t *testing.T) {
	require.Empty(t, contextFields(context.Background()))

	ctx := tenant.WithTenantID(context.Background(), "t1")
	ctx = appctx.WithActor(ctx, &appctx.Actor{ActorID: "alex", TenantID: "t1"})
	ctx, tc := appctx.StartTrace(ctx, "req-9")

	require.Equal(t, []any{
		"trace_id", tc.TraceID,
		"request_id", "req-9",
		"tenant_id", "t1",
		"actor_id", "alex",
	}, contextFields(ctx))
}

func TestDefault(t *testing.T) {
	nop := NewNop()
	SetDefault(nop)
	require.Same(t, nop, Default())
	require.Same(t, nop, nop.For(context.Background()))
}
