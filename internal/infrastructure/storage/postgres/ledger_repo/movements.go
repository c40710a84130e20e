package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
	"larder/internal/infrastructure/storage/postgres"
)

var movementColumns = postgres.Columns[ledger.Movement]()

// AppendMovements inserts the movement rows. Large batches use COPY.
func (r *Repo) AppendMovements(ctx context.Context, movements []ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, postgres.Values(movementColumns, m))
	}
	if err := r.batch.InsertRows(ctx, movementsTable, movementColumns, rows); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// ListMovements returns movements oldest first. With a limit, the newest N are kept.
func (r *Repo) ListMovements(ctx context.Context, scope tenant.Scope, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	sql, args, err := r.movementQuery(scope, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

func (r *Repo) movementQuery(scope tenant.Scope, filter ledger.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).From(movementsTable).Where(scoped(scope))
	if filter.ItemID != "" {
		q = q.Where(squirrel.Eq{"item_id": filter.ItemID})
	}
	if filter.Reason != "" {
		q = q.Where(squirrel.Eq{"reason": string(filter.Reason)})
	}
	if filter.RefType != "" {
		q = q.Where(squirrel.Eq{"ref_type": filter.RefType})
	}
	if filter.RefID != "" {
		q = q.Where(squirrel.Eq{"ref_id": filter.RefID})
	}

	if filter.Limit <= 0 {
		return q.OrderBy("created_at", "id")
	}
	recent := q.OrderBy("created_at DESC", "id DESC").Limit(uint64(filter.Limit))
	return r.builder.Select("*").FromSelect(recent, "recent").OrderBy("created_at", "id")
}
