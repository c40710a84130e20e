package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"larder/internal/core/apperror"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001", TableName: "inventory_items"}, apperror.CodeConcurrentModification},
		{"deadlock", fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40P01"}), apperror.CodeConcurrentModification},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "inventory_items_pkey"}, apperror.CodeConcurrentModification},
		{"app error untouched", apperror.NewNotFound("menu_item", "m1"), apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.err)
			require.True(t, apperror.IsCode(got, tt.wantCode), "got %v", got)
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	require.Same(t, error(other), translateError(other))

	plain := errors.New("boom")
	require.Equal(t, plain, translateError(plain))
	require.NoError(t, translateError(nil))
}

func TestSettle(t *testing.T) {
	m := &TxManager{}
	ctx := context.Background()
	span := trace.SpanFromContext(ctx)

	err := m.settle(ctx, span, fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40P01", TableName: "location_versions"}))
	require.True(t, apperror.IsConcurrentModification(err), "got %v", err)

	appErr, _ := apperror.AsAppError(err)
	require.Equal(t, "location_versions", appErr.Details["entity"])

	boom := errors.New("boom")
	require.Equal(t, boom, m.settle(ctx, span, boom))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, IsUniqueViolation(errors.New("x")))
}

func TestInsertSQL(t *testing.T) {
	got := insertSQL("inventory_movements", []string{"id", "item_id", "delta_quantity"})
	require.Equal(t, `INSERT INTO "inventory_movements" ("id", "item_id", "delta_quantity") VALUES ($1, $2, $3)`, got)
}

func TestSchemaEmbedded(t *testing.T) {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 2)

	body, err := schemaFS.ReadFile("schema/001_ledger.sql")
	require.NoError(t, err)
	for _, table := range []string{"inventory_items", "inventory_movements", "location_versions", "menu_items", "purchase_orders", "sys_sequences"} {
		require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

type columnsBase struct {
	Version int64 `db:"version"`
}

type columnsRecord struct {
	columnsBase
	ID      string `db:"id"`
	Name    string `db:"name"`
	Skipped string `db:"-"`
	Plain   string
}

func TestColumns(t *testing.T) {
	require.Equal(t, []string{"version", "id", "name"}, Columns[columnsRecord]())

	rec := &columnsRecord{columnsBase: columnsBase{Version: 3}, ID: "a", Name: "Milk", Skipped: "x"}
	require.Equal(t, map[string]any{"version": int64(3), "id": "a", "name": "Milk"}, Row(rec))
	require.Equal(t, []any{"Milk", int64(3), nil}, Values([]string{"name", "version", "missing"}, rec))
	require.Nil(t, Row(42))
}
