package ledger_repo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
)

func TestMovementQuery(t *testing.T) {
	repo := New(nil)
	scope := tenant.Scope{TenantID: "t1", LocationID: "loc-a"}
	cols := "id, tenant_id, location_id, item_id, delta_quantity, reason, previous_stock, new_stock, " +
		"previous_cost_per_unit, new_cost_per_unit, cost_changed, ref_type, ref_id, actor, created_at"

	tests := []struct {
		name     string
		filter   ledger.MovementFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "scope only",
			filter:   ledger.MovementFilter{},
			wantSQL:  "SELECT " + cols + " FROM inventory_movements WHERE location_id = $1 AND tenant_id = $2 ORDER BY created_at, id",
			wantArgs: []any{"loc-a", "t1"},
		},
		{
			name:   "order replay lookup",
			filter: ledger.MovementFilter{Reason: ledger.ReasonSale, RefType: ledger.RefTypeOrder, RefID: "ord-1"},
			wantSQL: "SELECT " + cols + " FROM inventory_movements WHERE location_id = $1 AND tenant_id = $2" +
				" AND reason = $3 AND ref_type = $4 AND ref_id = $5 ORDER BY created_at, id",
			wantArgs: []any{"loc-a", "t1", "sale", "order", "ord-1"},
		},
		{
			name:   "newest N",
			filter: ledger.MovementFilter{ItemID: "milk", Limit: 10},
			wantSQL: "SELECT * FROM (SELECT " + cols + " FROM inventory_movements WHERE location_id = $1 AND tenant_id = $2" +
				" AND item_id = $3 ORDER BY created_at DESC, id DESC LIMIT 10) AS recent ORDER BY created_at, id",
			wantArgs: []any{"loc-a", "t1", "milk"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.movementQuery(scope, tt.filter).ToSql()
			require.NoError(t, err)
			require.Equal(t, tt.wantSQL, sql)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestItemColumns(t *testing.T) {
	require.ElementsMatch(t, []string{
		"version", "created_at", "updated_at",
		"tenant_id", "location_id", "item_id", "name", "unit",
		"current_stock", "cost_per_unit", "min_stock", "max_stock", "active", "cost_version",
	}, itemColumns)
}
