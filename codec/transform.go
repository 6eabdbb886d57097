package codec

import (
	"github.com/iarc-il/holyrig/rigerr"
	"github.com/shopspring/decimal"
)

// applyTransform computes raw'' from a parameter's resolved integer value,
// per spec.md §4.3 step 3: "add first, then multiply", each step rounded
// half-to-even (decimal.RoundBank performs banker's rounding).
func applyTransform(value int64, add, multiply decimal.Decimal) int64 {
	step1 := decimal.NewFromInt(value).Add(add).RoundBank(0)
	step2 := step1.Mul(multiply).RoundBank(0)
	return step2.IntPart()
}

// invertTransform recovers the original integer from a decoded raw value,
// per spec.md §4.3 decode procedure: raw = round((decoded / multiply) - add).
func invertTransform(decoded int64, add, multiply decimal.Decimal) (int64, error) {
	if multiply.IsZero() {
		return 0, rigerr.New(rigerr.ErrValueOutOfRange, "field multiply factor is zero")
	}
	quotient := decimal.NewFromInt(decoded).Div(multiply)
	result := quotient.Sub(add).RoundBank(0)
	return result.IntPart(), nil
}
