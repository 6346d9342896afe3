package waterfall

import (
	"sort"
	"time"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
)

// shareClass is the resolved per-class input to one allocation pass.
type shareClass struct {
	name      string
	shares    int64
	invested  float64
	preferred bool
	pref      captable.LiquidationPref
}

// entitlement is the face value of the class's liquidation preference.
func (c shareClass) entitlement() float64 {
	return c.invested * c.pref.Multiple
}

// pooled reports whether a class shares in the common distribution given its
// preference payout. Common stock always does; a non-participating preferred
// class does once its preference payout is zero.
func (c shareClass) pooled(prefPayout float64) bool {
	if !c.preferred {
		return true
	}
	return !c.pref.Participating && prefPayout == 0
}

// stack is the grouped, seniority-ordered view of a cap table.
type stack struct {
	classes     map[string]shareClass
	senior      []string // preferred classes, senior first
	rowOrder    []string
	totalShares int64
}

func buildStack(ct captable.CapTable) stack {
	s := stack{
		classes:     make(map[string]shareClass),
		totalShares: ct.TotalShares,
	}

	var preferred []string
	for _, totals := range captable.GroupByClass(ct.Holdings) {
		c := shareClass{
			name:      totals.ShareClass,
			shares:    totals.Shares,
			invested:  totals.Invested,
			preferred: captable.IsPreferred(totals.ShareClass),
		}
		if c.preferred {
			if lp, ok := ct.Pref(c.name); ok {
				c.pref = lp
			} else {
				c.pref = captable.LiquidationPref{ShareClass: c.name, Multiple: constants.DefaultLiquidationMultiple}
			}
			preferred = append(preferred, c.name)
		}
		s.classes[c.name] = c
	}

	s.senior = seniorityOrder(ct.Rounds, preferred)
	s.rowOrder = rowOrder(s.classes, s.senior)
	return s
}

// seniorityOrder sorts preferred classes senior first. A class ranks by the
// first round that issued it, so follow-on rounds into an existing class
// (bridges, extensions) leave the stack unchanged; classes no round issued rank below all others,
// Series Seed last and the rest by name descending.
func seniorityOrder(rounds []captable.FundingRound, classes []string) []string {
	type dated struct {
		date time.Time
		name string
	}
	ordered := make([]dated, 0, len(rounds))
	for _, r := range rounds {
		d, _ := datetime.ParseDate(r.Date)
		ordered = append(ordered, dated{date: d, name: r.Name})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].date.Before(ordered[j].date)
	})

	issued := make(map[string]int)
	for pos, r := range ordered {
		class := captable.ShareClassForRound(r.name)
		if _, seen := issued[class]; !seen {
			issued[class] = pos
		}
	}

	out := append([]string(nil), classes...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iOK := issued[out[i]]
		rj, jOK := issued[out[j]]
		switch {
		case iOK && jOK:
			return ri > rj
		case iOK != jOK:
			return iOK
		}
		if (out[i] == constants.ClassSeriesSeed) != (out[j] == constants.ClassSeriesSeed) {
			return out[j] == constants.ClassSeriesSeed
		}
		return out[i] > out[j]
	})
	return out
}

// rowOrder lists Common first, then preferred classes junior to senior, then
// the option pool.
func rowOrder(classes map[string]shareClass, senior []string) []string {
	var out []string
	if c, ok := classes[constants.ClassCommon]; ok && c.shares > 0 {
		out = append(out, constants.ClassCommon)
	}
	for i := len(senior) - 1; i >= 0; i-- {
		if classes[senior[i]].shares > 0 {
			out = append(out, senior[i])
		}
	}
	if c, ok := classes[constants.ClassOptionPool]; ok && c.shares > 0 {
		out = append(out, constants.ClassOptionPool)
	}
	return out
}

// allocation is the unrounded outcome of one pass over the stack.
type allocation struct {
	liquidation   map[string]float64
	participation map[string]float64
	common        map[string]float64
	converted     map[string]bool
}

func (a allocation) total(class string) float64 {
	return a.liquidation[class] + a.participation[class] + a.common[class]
}

// allocate runs the preference, participation, conversion, and common
// distribution passes for one exit valuation.
//
// With forced == nil each non-participating class decides independently
// whether to convert, comparing its pro-rata share of the whole exit against
// its preference payout. Otherwise the classes in forced skip their
// preference and no other class converts.
func (s stack) allocate(exit float64, forced map[string]bool) allocation {
	a := allocation{
		liquidation:   make(map[string]float64),
		participation: make(map[string]float64),
		common:        make(map[string]float64),
		converted:     make(map[string]bool),
	}
	remaining := exit

	for _, name := range s.senior {
		c := s.classes[name]
		if forced[name] {
			a.converted[name] = true
			continue
		}
		amount := min(remaining, c.entitlement())
		if amount < 0 {
			amount = 0
		}
		a.liquidation[name] = amount
		remaining -= amount
	}

	for _, name := range s.senior {
		c := s.classes[name]
		if !c.pref.Participating || remaining <= 0 {
			continue
		}
		amount := remaining * float64(c.shares) / float64(s.totalShares)
		if c.pref.ParticipationCap != nil {
			capMultiple := *c.pref.ParticipationCap
			headroom := c.invested*capMultiple - a.liquidation[name]
			amount = min(amount, max(0, headroom))
		}
		a.participation[name] = amount
		remaining -= amount
	}

	if forced == nil {
		for _, name := range s.senior {
			c := s.classes[name]
			if c.pref.Participating {
				continue
			}
			proRata := float64(c.shares) / float64(s.totalShares) * exit
			if proRata > a.liquidation[name] {
				remaining += a.liquidation[name]
				a.liquidation[name] = 0
				a.converted[name] = true
			}
		}
	}

	var poolShares int64
	for _, name := range s.rowOrder {
		c := s.classes[name]
		if c.pooled(a.liquidation[name]) {
			poolShares += c.shares
		}
	}
	for _, name := range s.rowOrder {
		c := s.classes[name]
		if c.pooled(a.liquidation[name]) && poolShares > 0 {
			a.common[name] = float64(c.shares) / float64(poolShares) * remaining
		}
	}
	return a
}

// iterate converts non-participating classes one at a time, cheapest
// preference per share first, keeping a conversion only when it raises the
// converting class's proceeds under a full re-run of the waterfall. It stops
// once no remaining class gains by converting.
func (s stack) iterate(exit float64, onConvert func(class string, before, after float64)) allocation {
	forced := make(map[string]bool)
	current := s.allocate(exit, forced)

	var candidates []string
	for _, name := range s.senior {
		if !s.classes[name].pref.Participating {
			candidates = append(candidates, name)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return s.classes[candidates[i]].prefPerShare() < s.classes[candidates[j]].prefPerShare()
	})

	for {
		changed := false
		for _, name := range candidates {
			if forced[name] {
				continue
			}
			trial := make(map[string]bool, len(forced)+1)
			for k := range forced {
				trial[k] = true
			}
			trial[name] = true

			next := s.allocate(exit, trial)
			if next.total(name) > current.total(name) {
				if onConvert != nil {
					onConvert(name, current.total(name), next.total(name))
				}
				forced = trial
				current = next
				changed = true
				break
			}
		}
		if !changed {
			return current
		}
	}
}

func (c shareClass) prefPerShare() float64 {
	if c.shares == 0 {
		return 0
	}
	return c.entitlement() / float64(c.shares)
}
