package sales

import (
	"go-pos-tenancy/internal/models"

	"github.com/shopspring/decimal"
)

func roundingUnit(policy string) (decimal.Decimal, bool) {
	switch policy {
	case models.RoundingNearest100:
		return decimal.NewFromInt(100), true
	case models.RoundingNearest1000:
		return decimal.NewFromInt(1000), true
	default:
		return decimal.Zero, false
	}
}

// RoundTotal applies a rounding policy to a non-negative raw total and returns
// the rounded total with the signed adjustment (rounded - raw).
//
// In normal mode the total goes to the nearest unit, halves up. In discount
// mode it only ever goes down, so the customer never pays more than raw.
func RoundTotal(raw decimal.Decimal, policy, mode string) (total, adjustment decimal.Decimal) {
	unit, ok := roundingUnit(policy)
	if !ok {
		return raw, decimal.Zero
	}
	steps := raw.Div(unit)
	if mode == models.RoundingModeDiscount {
		steps = steps.Floor()
	} else {
		steps = steps.Round(0)
	}
	total = steps.Mul(unit)
	return total, total.Sub(raw)
}
