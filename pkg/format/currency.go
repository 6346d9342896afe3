// Package format renders currency, share counts, and percentages for display.
package format

import (
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// currencyCode is the currency of every amount in a cap table.
const currencyCode = money.USD

var wholeDollars = money.NewFormatter(0, ".", ",", "$", "$1")

// Currency returns a currency string with cents and thousands separators
// (e.g., "-$1,234.56").
func Currency(amount float64) string {
	cur := money.GetCurrency(currencyCode)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// WholeCurrency returns a currency string rounded to whole dollars
// (e.g., "$12,500,000").
func WholeCurrency(amount float64) string {
	return wholeDollars.Format(decimal.NewFromFloat(amount).Round(0).IntPart())
}

// ShortCurrency abbreviates large amounts: "$1.2B", "$12.5M", "$250K", "$950".
func ShortCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	abs := decimal.NewFromFloat(math.Abs(amount))

	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1_000_000_000)):
		return sign + "$" + abs.Shift(-9).StringFixed(1) + "B"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		return sign + "$" + abs.Shift(-6).StringFixed(1) + "M"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1_000)):
		return sign + "$" + abs.Shift(-3).StringFixed(0) + "K"
	default:
		return sign + "$" + abs.StringFixed(0)
	}
}
