package ledger_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"larder/internal/core/tenant"
	"larder/internal/domain/ledger"
)

const versionColumns = "tenant_id, location_id, stock_version, cost_version, synced_cost_version, updated_at"

func (r *Repo) GetLocationVersion(ctx context.Context, scope tenant.Scope) (ledger.LocationVersion, error) {
	var lv ledger.LocationVersion
	err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &lv,
		"SELECT "+versionColumns+" FROM "+versionsTable+" WHERE tenant_id = $1 AND location_id = $2",
		scope.TenantID, scope.LocationID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return ledger.LocationVersion{TenantID: scope.TenantID, LocationID: scope.LocationID}, nil
		}
		return ledger.LocationVersion{}, fmt.Errorf("select location version: %w", err)
	}
	return lv, nil
}

// BumpLocationVersion increments the selected counters with a single upsert. The row lock
// it takes serializes concurrent writers of the same location until commit.
func (r *Repo) BumpLocationVersion(ctx context.Context, scope tenant.Scope, bump ledger.VersionBump) (ledger.LocationVersion, error) {
	stock, cost := 0, 0
	if bump.Stock {
		stock = 1
	}
	if bump.Cost {
		cost = 1
	}

	var lv ledger.LocationVersion
	err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &lv, `
		INSERT INTO `+versionsTable+` (tenant_id, location_id, stock_version, cost_version, synced_cost_version, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (tenant_id, location_id) DO UPDATE
		SET stock_version = `+versionsTable+`.stock_version + EXCLUDED.stock_version,
		    cost_version  = `+versionsTable+`.cost_version + EXCLUDED.cost_version,
		    updated_at    = EXCLUDED.updated_at
		RETURNING `+versionColumns,
		scope.TenantID, scope.LocationID, stock, cost, r.now())
	if err != nil {
		return ledger.LocationVersion{}, fmt.Errorf("bump location version: %w", err)
	}
	return lv, nil
}

func (r *Repo) AdvanceSyncedCostVersion(ctx context.Context, scope tenant.Scope, version int64) error {
	_, err := r.txm.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO `+versionsTable+` (tenant_id, location_id, synced_cost_version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, location_id) DO UPDATE
		SET synced_cost_version = GREATEST(`+versionsTable+`.synced_cost_version, EXCLUDED.synced_cost_version),
		    updated_at          = EXCLUDED.updated_at
	`, scope.TenantID, scope.LocationID, version, r.now())
	if err != nil {
		return fmt.Errorf("advance synced cost version: %w", err)
	}
	return nil
}
