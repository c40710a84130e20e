package ledger

import (
	"larder/internal/core/types"
)

// WeightedAverageCost blends the value on hand with the value received:
//
//	(stock*cost + qty*price) / (stock + qty)
//
// When stock+qty is zero the unit price is returned.
func WeightedAverageCost(stock types.Quantity, cost types.Money, qty types.Quantity, price types.Money) types.Money {
	total := stock + qty
	if total == 0 {
		return price
	}
	value := stock.MulMoney(cost).Add(qty.MulMoney(price))
	return value.Div(total.Decimal())
}

// FloorDeduct subtracts qty from stock without going below zero.
// The returned shortfall is the part of qty that could not be covered.
func FloorDeduct(stock, qty types.Quantity) (next, shortfall types.Quantity) {
	if qty <= stock {
		return stock - qty, 0
	}
	if stock < 0 {
		stock = 0
	}
	return 0, qty - stock
}

// CostChanged compares two unit costs, not stock counts.
func CostChanged(previous, next, eps types.Money) bool {
	return types.DiffExceeds(next, previous, eps)
}
