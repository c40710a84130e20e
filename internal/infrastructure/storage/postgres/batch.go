package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// copyThreshold is the row count above which COPY beats a pipelined batch of INSERTs.
const copyThreshold = 64

// BatchWriter writes append-only rows (stock movements) inside the current transaction.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a batch writer bound to the transaction manager.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// CopyFromSlice bulk-inserts rows with the COPY protocol.
func (b *BatchWriter) CopyFromSlice(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("CopyFromSlice requires transaction context")
	}
	return tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ExecuteBatch sends all queries in one round-trip and fails on the first error.
func (b *BatchWriter) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	if len(queries) == 0 {
		return nil
	}
	q := b.txManager.GetQuerier(ctx)

	batch := &pgx.Batch{}
	for _, bq := range queries {
		batch.Queue(bq.SQL, bq.Args...)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d: %w", i, err)
		}
	}
	return nil
}

// InsertRows picks COPY for large inserts and a pipelined batch otherwise.
func (b *BatchWriter) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) >= copyThreshold && b.txManager.GetTx(ctx) != nil {
		_, err := b.CopyFromSlice(ctx, table, columns, rows)
		return err
	}

	sql := insertSQL(table, columns)
	queries := make([]BatchQuery, len(rows))
	for i, row := range rows {
		queries[i] = BatchQuery{SQL: sql, Args: row}
	}
	return b.ExecuteBatch(ctx, queries)
}

func insertSQL(table string, columns []string) string {
	sql := "INSERT INTO " + pgx.Identifier{table}.Sanitize() + " ("
	values := ""
	for i, c := range columns {
		if i > 0 {
			sql += ", "
			values += ", "
		}
		sql += pgx.Identifier{c}.Sanitize()
		values += fmt.Sprintf("$%d", i+1)
	}
	return sql + ") VALUES (" + values + ")"
}
