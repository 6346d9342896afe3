package captable

import (
	"strings"

	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
)

// RecomputeOwnership returns a copy of holdings with OwnershipPct derived from
// each holding's shares over totalShares, rounded to two decimals. It is the
// only producer of OwnershipPct values.
func RecomputeOwnership(holdings []Holding, totalShares int64) ([]Holding, error) {
	if totalShares <= 0 {
		return nil, Invalid("totalShares", "must be positive, got %d", totalShares)
	}

	out := make([]Holding, len(holdings))
	for i, h := range holdings {
		h.OwnershipPct = mathutil.Round(mathutil.CalculatePercentage(float64(h.Shares), float64(totalShares)))
		out[i] = h
	}
	return out, nil
}

// SharesByShareholder sums shares per shareholder across classes. The returned
// order follows each shareholder's first appearance in holdings.
func SharesByShareholder(holdings []Holding) (order []string, shares map[string]int64) {
	shares = make(map[string]int64)
	for _, h := range holdings {
		if _, ok := shares[h.ShareholderID]; !ok {
			order = append(order, h.ShareholderID)
		}
		shares[h.ShareholderID] += h.Shares
	}
	return order, shares
}

// ClassTotals is the per-class aggregate of holdings.
type ClassTotals struct {
	ShareClass string
	Shares     int64
	Invested   float64
}

// GroupByClass aggregates holdings into per-class share and investment totals,
// in order of first appearance.
func GroupByClass(holdings []Holding) []ClassTotals {
	index := make(map[string]int)
	var out []ClassTotals
	for _, h := range holdings {
		i, ok := index[h.ShareClass]
		if !ok {
			i = len(out)
			index[h.ShareClass] = i
			out = append(out, ClassTotals{ShareClass: h.ShareClass})
		}
		out[i].Shares += h.Shares
		out[i].Invested += h.InvestmentAmount
	}
	return out
}

// IsPreferred reports whether a share class carries liquidation rights.
// Common stock and the option pool are the only non-preferred classes.
func IsPreferred(shareClass string) bool {
	return shareClass != constants.ClassCommon && shareClass != constants.ClassOptionPool
}

// ShareClassForRound derives the preferred class issued by a round from its
// name: "Series A" issues Series A, any other "Series X" issues Series X, and
// earlier rounds (pre-seed, seed, angel) issue Series Seed.
func ShareClassForRound(roundName string) string {
	name := strings.TrimSpace(roundName)
	if strings.HasPrefix(name, "Series ") && !strings.EqualFold(name, constants.ClassSeriesSeed) {
		return name
	}
	return constants.ClassSeriesSeed
}
