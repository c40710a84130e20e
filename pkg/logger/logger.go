// Package logger is the zap-backed structured logger. Package-level helpers take a
// context and add its trace, tenant and actor fields to every line.
package logger

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "larder/internal/core/context"
	"larder/internal/core/tenant"
)

// Logger wraps zap.SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error; unknown values mean info
	Development bool   // console encoder with colored levels
}

// New builds a Logger. Production output is JSON on stderr.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zl, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

var current atomic.Pointer[Logger]

// Default returns the process logger: the one passed to SetDefault, else a
// production logger built on first use.
func Default() *Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l, err := New(Config{Level: "info"})
	if err != nil {
		l = NewNop()
	}
	current.CompareAndSwap(nil, l)
	return current.Load()
}

// SetDefault replaces the process logger.
func SetDefault(l *Logger) {
	current.Store(l)
}

// With adds key-value pairs to logger.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{l.SugaredLogger.With(keysAndValues...)}
}

// For returns l with the fields carried by ctx.
func (l *Logger) For(ctx context.Context) *Logger {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

func contextFields(ctx context.Context) []any {
	var fields []any
	if tc := appctx.GetTrace(ctx); tc != nil {
		fields = append(fields, "trace_id", tc.TraceID, "request_id", tc.RequestID)
	}
	if id := tenant.GetTenantID(ctx); id != "" {
		fields = append(fields, "tenant_id", id)
	}
	if id := appctx.GetActorID(ctx); id != "" {
		fields = append(fields, "actor_id", id)
	}
	return fields
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	Default().For(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	Default().For(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	Default().For(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	Default().For(ctx).Errorw(msg, keysAndValues...)
}
