package format

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// ShareCount abbreviates share counts: "2.50M", "250K", "950".
func ShareCount(shares int64) string {
	d := decimal.NewFromInt(shares)
	switch {
	case shares >= 1_000_000:
		return d.Shift(-6).StringFixed(2) + "M"
	case shares >= 1_000:
		return d.Shift(-3).StringFixed(0) + "K"
	default:
		return strconv.FormatInt(shares, 10)
	}
}

// Percent renders a percentage with two decimals (e.g., "12.34%").
func Percent(value float64) string {
	return decimal.NewFromFloat(value).StringFixed(2) + "%"
}

// Multiple renders a return multiple with two decimals (e.g., "2.50x").
func Multiple(value float64) string {
	return decimal.NewFromFloat(value).StringFixed(2) + "x"
}
