// Package types provides the numeric types used by the ledger.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a cost or price with full decimal precision.
type Money = decimal.Decimal

// CostEpsilon is the tolerance below which two costs are considered equal.
var CostEpsilon = decimal.New(1, -4)

// NewMoney creates Money from a float. Prefer MustMoney / NewMoneyFromString for exact values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString parses a decimal string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney parses a decimal string and panics on error. Constants and tests only.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money.
func Zero() Money {
	return decimal.Zero
}

// DiffExceeds reports whether |a-b| is strictly greater than eps.
func DiffExceeds(a, b, eps Money) bool {
	return a.Sub(b).Abs().GreaterThan(eps)
}

// Quantity is a fixed-point stock quantity with 4 decimal places (scale = 1e4).
// Stored as BIGINT in the database; encoded as a JSON number.
type Quantity int64

const QuantityScale int64 = 10_000

var quantityScaleDecimal = decimal.NewFromInt(QuantityScale)

// Qty builds a Quantity from whole units.
func Qty(units int64) Quantity { return Quantity(units * QuantityScale) }

var (
	maxQuantity = decimal.NewFromInt(math.MaxInt64)
	minQuantity = decimal.NewFromInt(math.MinInt64)
)

// NewQuantityFromFloat64 rounds v to 4 places, saturating at the int64 range. NaN is zero.
func NewQuantityFromFloat64(v float64) Quantity {
	if math.IsNaN(v) {
		return 0
	}
	return NewQuantityFromDecimal(decimal.NewFromFloat(clampFloat(v)))
}

// NewQuantityFromDecimal rounds d to 4 places, saturating at the int64 range.
func NewQuantityFromDecimal(d decimal.Decimal) Quantity {
	scaled := d.Mul(quantityScaleDecimal).Round(0)
	switch {
	case scaled.GreaterThan(maxQuantity):
		return Quantity(math.MaxInt64)
	case scaled.LessThan(minQuantity):
		return Quantity(math.MinInt64)
	}
	return Quantity(scaled.IntPart())
}

func clampFloat(v float64) float64 {
	limit := float64(math.MaxInt64) / float64(QuantityScale)
	return math.Max(-limit, math.Min(limit, v))
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

// Decimal returns the exact decimal value of q.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -4) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// Mul multiplies two quantities (e.g. quantity per unit × units sold), rounding to 4 places.
func (q Quantity) Mul(other Quantity) Quantity {
	return NewQuantityFromDecimal(q.Decimal().Mul(other.Decimal()))
}

// MulMoney returns q × price as Money.
func (q Quantity) MulMoney(price Money) Money {
	return q.Decimal().Mul(price)
}

func (q Quantity) String() string {
	v := int64(q)
	sign := ""
	u := uint64(v)
	if v < 0 {
		sign = "-"
		u = -u
	}
	scale := uint64(QuantityScale)
	return fmt.Sprintf("%s%d.%04d", sign, u/scale, u%scale)
}

// MarshalJSON encodes Quantity as a JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	parsed, err := ParseQuantity(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuantity parses a decimal string, truncating digits beyond the 4th fractional place.
// Values outside the int64 fixed-point range are rejected.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if strings.ContainsAny(s, "eE") {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		// |d| < 10^(exponent+digits); bound it before rescaling a huge exponent
		magnitude := int(d.Exponent()) + d.NumDigits()
		switch {
		case magnitude > 19:
			return 0, fmt.Errorf("quantity %s out of range", s)
		case magnitude < -4:
			return 0, nil
		}
		scaled := d.Truncate(4).Mul(quantityScaleDecimal)
		if scaled.GreaterThan(maxQuantity) || scaled.LessThan(minQuantity) {
			return 0, fmt.Errorf("quantity %s out of range", s)
		}
		return Quantity(scaled.IntPart()), nil
	}

	sign := int64(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	intStr, fracStr, _ := strings.Cut(s, ".")
	if intStr == "" && fracStr == "" {
		return 0, fmt.Errorf("quantity %q has no digits", s)
	}
	if !isDigits(intStr) || !isDigits(fracStr) {
		return 0, fmt.Errorf("quantity %q is not a decimal number", s)
	}
	if intStr == "" {
		intStr = "0"
	}

	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	}
	fracStr += strings.Repeat("0", 4-len(fracStr))
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity fractional part: %w", err)
	}

	whole, err := strconv.ParseInt(intStr, 10, 64)
	if err != nil || whole > (math.MaxInt64-frac)/QuantityScale {
		return 0, fmt.Errorf("quantity %s out of range", s)
	}

	return Quantity(sign * (whole*QuantityScale + frac)), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
