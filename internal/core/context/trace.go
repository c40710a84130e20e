package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext correlates log lines of one request or job run.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// StartTrace attaches a TraceContext to ctx. The trace id is taken from the active
// otel span when there is one, so log lines and spans share it. An empty requestID
// gets a generated one.
func StartTrace(ctx context.Context, requestID string) (context.Context, *TraceContext) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	tc := &TraceContext{RequestID: requestID}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		tc.TraceID = sc.TraceID().String()
	} else {
		tc.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, traceContextKey{}, tc), tc
}

func GetTrace(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return tc
}
