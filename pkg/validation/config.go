package validation

import (
	"fmt"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
)

// CapTableWarnings reports data that is legal but probably unintended: a
// preferred class relying on the default preference, holdings or round
// investors without a shareholder record, a fund with no holdings, and rounds
// listed out of date order.
func CapTableWarnings(ct captable.CapTable, fundID string) []string {
	var warnings []string

	for _, totals := range captable.GroupByClass(ct.Holdings) {
		if !captable.IsPreferred(totals.ShareClass) {
			continue
		}
		if _, ok := ct.Pref(totals.ShareClass); !ok {
			warnings = append(warnings, fmt.Sprintf("Company '%s' class '%s' has no liquidation preference; assuming 1x non-participating",
				ct.CompanyID, totals.ShareClass))
		}
	}

	reported := make(map[string]bool)
	for _, h := range ct.Holdings {
		if _, ok := ct.Shareholder(h.ShareholderID); !ok && !reported[h.ShareholderID] {
			reported[h.ShareholderID] = true
			warnings = append(warnings, fmt.Sprintf("Company '%s' holding references unknown shareholder '%s'",
				ct.CompanyID, h.ShareholderID))
		}
	}
	for _, r := range ct.Rounds {
		for _, inv := range r.Investors {
			if _, ok := ct.Shareholder(inv.ShareholderID); !ok && !reported[inv.ShareholderID] {
				reported[inv.ShareholderID] = true
				warnings = append(warnings, fmt.Sprintf("Company '%s' round '%s' references unknown shareholder '%s'",
					ct.CompanyID, r.Name, inv.ShareholderID))
			}
		}
	}

	if fundID != "" && len(ct.HoldingsOf(fundID)) == 0 {
		warnings = append(warnings, fmt.Sprintf("Company '%s' has no holdings for fund '%s'; fund metrics will be zero",
			ct.CompanyID, fundID))
	}

	warnings = append(warnings, ValidateRoundOrder(ct)...)
	return warnings
}

// ValidateRoundOrder checks that rounds are listed in date order.
func ValidateRoundOrder(ct captable.CapTable) []string {
	var warnings []string
	var previous string
	for i, r := range ct.Rounds {
		current, err := datetime.ParseDate(r.Date)
		if err != nil {
			continue
		}
		if i > 0 && previous != "" {
			prev, err := datetime.ParseDate(previous)
			if err == nil && current.Before(prev) {
				warnings = append(warnings, fmt.Sprintf("Company '%s' round '%s' (%s) is listed after a later round (%s)",
					ct.CompanyID, r.Name, r.Date, previous))
			}
		}
		previous = r.Date
	}
	return warnings
}
