package purchasing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"larder/internal/core/apperror"
	"larder/internal/core/types"
	"larder/internal/domain/purchasing"
)

func TestService_CreateSubmit(t *testing.T) {
	f := newFixture(t)

	po, err := f.svc.Create(f.ctx, purchasing.CreateInput{
		LocationID: "loc-a",
		Supplier:   "  Dairy Co ",
		Lines:      []purchasing.Line{milkLine()},
	})
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusDraft, po.Status)
	require.Equal(t, "Dairy Co", po.Supplier)
	require.Regexp(t, `^PO-\d{4}-00001$`, po.OrderNumber)
	require.True(t, po.Total().Equal(types.MustMoney("1300")))

	second, err := f.svc.Create(f.ctx, purchasing.CreateInput{LocationID: "loc-a", Supplier: "Dairy Co", Lines: []purchasing.Line{milkLine()}})
	require.NoError(t, err)
	require.Regexp(t, `^PO-\d{4}-00002$`, second.OrderNumber)

	submitted, err := f.svc.Submit(f.ctx, po.POID)
	require.NoError(t, err)
	require.Equal(t, purchasing.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	_, err = f.svc.Submit(f.ctx, po.POID)
	require.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition))
}

func TestService_CreateValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   purchasing.CreateInput
		code string
	}{
		{"no location", purchasing.CreateInput{Supplier: "S", Lines: []purchasing.Line{milkLine()}}, apperror.CodeMissingLocation},
		{"no supplier", purchasing.CreateInput{LocationID: "loc-a", Lines: []purchasing.Line{milkLine()}}, apperror.CodeValidation},
		{"no lines", purchasing.CreateInput{LocationID: "loc-a", Supplier: "S"}, apperror.CodeValidation},
		{"zero qty", purchasing.CreateInput{LocationID: "loc-a", Supplier: "S", Lines: []purchasing.Line{{ItemName: "Milk", UnitPrice: types.MustMoney("1")}}}, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(f.ctx, tt.in)
			require.True(t, apperror.IsCode(err, tt.code), "got %v", err)
		})
	}
}
