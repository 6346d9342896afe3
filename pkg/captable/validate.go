package captable

import (
	"fmt"
	"math"

	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
)

// Validate checks the cap table invariants and returns the first violation as
// a *ValidationError.
func (ct CapTable) Validate() error {
	fail := func(field, format string, args ...any) error {
		return &ValidationError{CompanyID: ct.CompanyID, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if ct.TotalShares <= 0 {
		return fail("totalShares", "must be positive, got %d", ct.TotalShares)
	}

	classes := make(map[string]struct{})
	for i, h := range ct.Holdings {
		field := fmt.Sprintf("holdings[%d]", i)
		if h.ShareClass == "" {
			return fail(field, "share class is required")
		}
		if h.Shares < 0 {
			return fail(field, "negative share count %d", h.Shares)
		}
		if h.InvestmentAmount < 0 || math.IsNaN(h.InvestmentAmount) {
			return fail(field, "invalid investment amount %v", h.InvestmentAmount)
		}
		classes[h.ShareClass] = struct{}{}
	}
	if held := ct.HeldShares(); held != ct.TotalShares {
		return fail("totalShares", "holdings sum to %d shares, total is %d", held, ct.TotalShares)
	}

	seen := make(map[string]struct{})
	for i, lp := range ct.LiquidationPrefs {
		field := fmt.Sprintf("liquidationPrefs[%d]", i)
		if _, ok := classes[lp.ShareClass]; !ok {
			return fail(field, "share class %q has no holdings", lp.ShareClass)
		}
		if _, dup := seen[lp.ShareClass]; dup {
			return fail(field, "duplicate preference for share class %q", lp.ShareClass)
		}
		seen[lp.ShareClass] = struct{}{}
		if lp.Multiple < 0 || math.IsNaN(lp.Multiple) {
			return fail(field, "invalid multiple %v", lp.Multiple)
		}
		if lp.ParticipationCap != nil && (*lp.ParticipationCap < 0 || math.IsNaN(*lp.ParticipationCap)) {
			return fail(field, "invalid participation cap %v", *lp.ParticipationCap)
		}
	}

	for i, r := range ct.Rounds {
		field := fmt.Sprintf("rounds[%d]", i)
		if _, err := datetime.ParseDate(r.Date); err != nil {
			return fail(field, "%v", err)
		}
		if r.PreMoney < 0 || r.RoundSize < 0 {
			return fail(field, "negative valuation or round size")
		}
		if !mathutil.WithinTolerance(r.PreMoney+r.RoundSize, r.PostMoney, constants.CurrencyTolerance) {
			return fail(field, "post-money %v does not equal pre-money %v plus round size %v", r.PostMoney, r.PreMoney, r.RoundSize)
		}
	}

	return nil
}
