package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"larder/internal/core/apperror"
	"larder/internal/core/tx"
	"larder/pkg/logger"
)

var tracer = otel.Tracer("larder/tx")

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// PostgreSQL error codes that mean another writer got there first.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

var txConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "larder",
	Subsystem: "tx",
	Name:      "conflicts_total",
	Help:      "Transactions aborted by a write race, by PostgreSQL error code",
}, []string{"code"})

const defaultStatementTimeout = 30 * time.Second

// TxManager runs ledger operations in read-committed transactions. A call made with a
// transaction already in ctx joins it. Write races (serialization failure, deadlock,
// duplicate key) come back as CONCURRENT_MODIFICATION for tx.WithRetry to replay.
type TxManager struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// TxManagerOption configures a TxManager.
type TxManagerOption func(*TxManager)

// WithStatementTimeout bounds every statement of a transaction. Zero disables the limit.
func WithStatementTimeout(d time.Duration) TxManagerOption {
	return func(m *TxManager) { m.statementTimeout = d }
}

func NewTxManager(pool *Pool, opts ...TxManagerOption) *TxManager {
	m := &TxManager{pool: pool.Pool, statementTimeout: defaultStatementTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type txKey struct{}

// Tx is the transaction carried in a context.
type Tx struct {
	pgx.Tx
	readOnly bool
}

func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.ReadWrite, fn)
}

// ReadOnly runs fn in a read-only transaction.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, pgx.ReadOnly, fn)
}

func (m *TxManager) run(ctx context.Context, mode pgx.TxAccessMode, fn func(ctx context.Context) error) error {
	if current := m.GetTx(ctx); current != nil {
		if current.readOnly && mode == pgx.ReadWrite {
			return fmt.Errorf("write transaction requested inside a read-only one")
		}
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction", trace.WithAttributes(
		attribute.String("tx.access_mode", string(mode)),
	))
	defer span.End()

	err := m.execute(ctx, mode, fn)
	if err != nil {
		err = m.settle(ctx, span, err)
	}
	return err
}

func (m *TxManager) execute(ctx context.Context, mode pgx.TxAccessMode, fn func(ctx context.Context) error) (err error) {
	ptx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: mode})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// ctx may already be cancelled; the rollback still has to reach the server
		if rbErr := ptx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Error(ctx, "rollback failed", "error", rbErr, "cause", err)
		}
	}()

	if m.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", m.statementTimeout.Milliseconds())
		if _, err := ptx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, &Tx{Tx: ptx, readOnly: mode == pgx.ReadOnly})); err != nil {
		return err
	}
	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// settle records a failed transaction on its span and turns write races into
// CONCURRENT_MODIFICATION.
func (m *TxManager) settle(ctx context.Context, span trace.Span, err error) error {
	if pgErr, ok := writeRace(err); ok {
		txConflicts.WithLabelValues(pgErr.Code).Inc()
		span.SetAttributes(attribute.String("tx.conflict", pgErr.Code))
		logger.Debug(ctx, "transaction lost a write race", "code", pgErr.Code, "table", pgErr.TableName)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return translateError(err)
}

// writeRace reports whether err is a PostgreSQL failure caused by a concurrent writer.
func writeRace(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
		return pgErr, true
	}
	return nil, false
}

// translateError maps write races to CONCURRENT_MODIFICATION. AppErrors and every
// other error pass through unchanged.
func translateError(err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}
	if pgErr, ok := writeRace(err); ok {
		return apperror.NewConcurrentModification(pgErr.TableName, pgErr.ConstraintName).WithCause(err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// GetTx returns the transaction carried in ctx, nil outside one.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	t, _ := ctx.Value(txKey{}).(*Tx)
	return t
}

// Querier is satisfied by both a transaction and the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// GetQuerier returns the transaction of ctx, or the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}

// QueryRow runs on the transaction of ctx when there is one, so the numerator takes
// order numbers inside the transaction that stores the order.
func (m *TxManager) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return m.GetQuerier(ctx).QueryRow(ctx, sql, args...)
}
