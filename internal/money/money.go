// Package money rounds user-facing amounts with decimal arithmetic so that
// binary float noise never reaches a receipt or a report.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round returns v rounded half away from zero to two decimal places.
func Round(v float64) float64 {
	return result(fromFloat(v).Round(2))
}

// Percent returns base*pct/100 rounded to two decimal places.
func Percent(base float64, pct float64) float64 {
	return result(fromFloat(base).
		Mul(fromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2))
}

// Mul returns a*b rounded to two decimal places.
func Mul(a float64, b float64) float64 {
	return result(fromFloat(a).Mul(fromFloat(b)).Round(2))
}

// Sum adds values exactly before rounding once.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(fromFloat(v))
	}
	return result(total.Round(2))
}

// Finite maps NaN and infinities to 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// fromFloat treats non-finite input as 0; decimal panics on it.
func fromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(Finite(v))
}

// result clamps values beyond the float64 range to ±MaxFloat64.
func result(d decimal.Decimal) float64 {
	v := d.InexactFloat64()
	switch {
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	case math.IsNaN(v):
		return 0
	}
	return v
}
