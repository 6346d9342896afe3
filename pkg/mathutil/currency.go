// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/shopspring/decimal"
)

// Round rounds a value to two decimals, the precision kept on percentages
// and multiples. Halves round away from zero.
func Round(val float64) float64 {
	return RoundTo(val, constants.PercentPrecision)
}

// RoundWhole rounds a value to whole currency units.
func RoundWhole(val float64) float64 {
	return RoundTo(val, 0)
}

// RoundTo rounds a value to the given number of decimal places. Rounding is
// done in decimal so that values such as 1.005 round the way they read.
func RoundTo(val float64, places int32) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	return decimal.NewFromFloat(val).Round(places).InexactFloat64()
}

var (
	maxShares = decimal.NewFromInt(math.MaxInt64)
	minShares = decimal.NewFromInt(math.MinInt64)
)

// RoundShares rounds a fractional share count to a whole number of shares.
// ok is false when the count is not finite or does not fit in an int64.
func RoundShares(val float64) (shares int64, ok bool) {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	d := decimal.NewFromFloat(val).Round(0)
	if d.GreaterThan(maxShares) || d.LessThan(minShares) {
		return 0, false
	}
	return d.IntPart(), true
}

// SafeDiv divides numerator by denominator, returning 0 when the denominator is zero.
func SafeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * constants.PercentageMultiplier
}

// ApplyPercentage applies a percentage to a value
func ApplyPercentage(value, percentage float64) float64 {
	return value * (percentage / constants.PercentageMultiplier)
}
