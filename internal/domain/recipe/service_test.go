package recipe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/types"
	"larder/internal/domain/ledger"
	"larder/internal/domain/recipe"
	"larder/internal/infrastructure/storage/memory"
)

func TestService_Upsert(t *testing.T) {
	ctx := tenant.WithTenantID(context.Background(), "t1")
	scope := tenant.Scope{TenantID: "t1", LocationID: "loc-a"}
	mem := memory.New()
	store := ledger.NewStore(mem, mem)
	svc := recipe.NewService(mem, store, mem)

	require.NoError(t, mem.CreateItem(ctx, &ledger.InventoryItem{
		TenantID: "t1", LocationID: "loc-a", ItemID: "milk", Name: "Milk", Unit: "l",
		CostPerUnit: types.MustMoney("2"), Active: true,
	}))

	in := recipe.UpsertInput{
		MenuItemID: "latte",
		Name:       "Latte",
		Price:      types.MustMoney("4"),
		Active:     true,
		Ingredients: []recipe.Ingredient{
			{LegacyID: "milk", QuantityPerUnit: types.NewQuantityFromFloat64(0.3)},
		},
	}
	created, err := svc.Upsert(ctx, scope, in)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.Version)
	require.Equal(t, "milk", created.Ingredients[0].InventoryItemID)
	require.Equal(t, "Milk", created.Ingredients[0].Name)
	require.True(t, created.TotalCost.Equal(types.MustMoney("0.6")))

	in.Price = types.MustMoney("4.5")
	updated, err := svc.Upsert(ctx, scope, in)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	got, err := svc.Get(ctx, scope, "latte")
	require.NoError(t, err)
	require.True(t, got.Price.Equal(types.MustMoney("4.5")))

	// ingredients must exist in the same location
	_, err = svc.Upsert(ctx, tenant.Scope{TenantID: "t1", LocationID: "loc-b"}, in)
	require.True(t, apperror.IsNotFound(err))

	_, err = svc.Upsert(ctx, tenant.Scope{TenantID: "t1"}, in)
	require.True(t, apperror.IsCode(err, apperror.CodeMissingLocation))
}
