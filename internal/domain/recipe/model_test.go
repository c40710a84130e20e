package recipe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"larder/internal/core/types"
)

func TestIngredient_DecodesLegacyReference(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"canonical", `{"inventoryItemId":"milk","name":"Milk","quantity":0.25}`, "milk"},
		{"legacy id", `{"id":"milk","name":"Milk","quantity":0.25}`, "milk"},
		{"canonical wins", `{"inventoryItemId":"milk","id":"old-milk","quantity":1}`, "milk"},
		{"none", `{"name":"Secret","quantity":1}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ing Ingredient
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &ing))
			require.Equal(t, tt.want, ing.ItemRef())
		})
	}
}

func TestIngredient_EncodesCanonicalField(t *testing.T) {
	var ing Ingredient
	require.NoError(t, json.Unmarshal([]byte(`{"id":"milk","quantity":2,"unitCost":"1.5"}`), &ing))

	m := MenuItem{Ingredients: []Ingredient{ing}}
	require.True(t, m.CanonicalizeRefs())
	require.False(t, m.CanonicalizeRefs())

	out, err := json.Marshal(m.Ingredients[0])
	require.NoError(t, err)
	require.Contains(t, string(out), `"inventoryItemId":"milk"`)
	require.NotContains(t, string(out), `"id"`)
}

func TestMenuItem_RecomputeTotal(t *testing.T) {
	m := MenuItem{
		Price: types.MustMoney("10"),
		Ingredients: []Ingredient{
			{InventoryItemID: "a", QuantityPerUnit: types.NewQuantityFromFloat64(0.5), UnitCost: types.MustMoney("4")},
			{InventoryItemID: "b", QuantityPerUnit: types.Qty(3), UnitCost: types.MustMoney("1.25")},
		},
	}
	require.True(t, m.RecomputeTotal().Equal(types.MustMoney("5.75")))
	require.True(t, m.Margin().Equal(types.MustMoney("4.25")))
	require.True(t, m.References("b"))
	require.False(t, m.References("c"))
}
