// Package portfolio rolls fund positions up into portfolio-level metrics.
package portfolio

import (
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
)

// NoRound is reported as the last round of a company without rounds.
const NoRound = "N/A"

// Company is the descriptive metadata of a portfolio company.
type Company struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Stage string `json:"stage" yaml:"stage" mapstructure:"stage"`
}

// Position is the fund's stake in one company. ImpliedValuation and
// UnrealizedValue come from an external valuation estimate.
type Position struct {
	CompanyID        string  `json:"companyId"`
	CompanyName      string  `json:"companyName"`
	Stage            string  `json:"stage"`
	LastRound        string  `json:"lastRound"`
	CheckSize        float64 `json:"checkSize"`
	OwnershipPct     float64 `json:"ownershipPct"`
	ImpliedValuation float64 `json:"impliedValuation"`
	MOIC             float64 `json:"moic"`
	UnrealizedValue  float64 `json:"unrealizedValue"`
}

// Summary aggregates the active positions of a portfolio.
type Summary struct {
	TotalDeployed   float64 `json:"totalDeployed"`
	TotalFairValue  float64 `json:"totalFairValue"`
	BlendedMOIC     float64 `json:"blendedMoic"`
	AvgOwnership    float64 `json:"avgOwnership"`
	ActivePositions int     `json:"activePositions"`
}

// NewPosition derives the fund's position in a company from its cap table and
// an implied valuation. Ownership is recomputed from share counts.
func NewPosition(ct captable.CapTable, fundID string, company Company, impliedValuation float64) Position {
	var checkSize float64
	var shares int64
	for _, h := range ct.HoldingsOf(fundID) {
		checkSize += h.InvestmentAmount
		shares += h.Shares
	}
	ownershipPct := mathutil.CalculatePercentage(float64(shares), float64(ct.TotalShares))
	unrealized := mathutil.ApplyPercentage(impliedValuation, ownershipPct)

	lastRound := NoRound
	if r, ok := ct.LastRound(); ok {
		lastRound = r.Name
	}

	var moic float64
	if checkSize > 0 {
		moic = mathutil.Round(unrealized / checkSize)
	}

	return Position{
		CompanyID:        company.ID,
		CompanyName:      company.Name,
		Stage:            company.Stage,
		LastRound:        lastRound,
		CheckSize:        checkSize,
		OwnershipPct:     mathutil.Round(ownershipPct),
		ImpliedValuation: impliedValuation,
		MOIC:             moic,
		UnrealizedValue:  mathutil.RoundWhole(unrealized),
	}
}

// ComputeSummary totals the positions with a positive check size. An empty
// or fully inactive portfolio yields a zero summary.
func ComputeSummary(positions []Position) Summary {
	var s Summary
	var ownership float64
	for _, p := range positions {
		if p.CheckSize <= 0 {
			continue
		}
		s.ActivePositions++
		s.TotalDeployed += p.CheckSize
		s.TotalFairValue += p.UnrealizedValue
		ownership += p.OwnershipPct
	}

	s.BlendedMOIC = mathutil.Round(mathutil.SafeDiv(s.TotalFairValue, s.TotalDeployed))
	s.AvgOwnership = mathutil.Round(mathutil.SafeDiv(ownership, float64(s.ActivePositions)))
	return s
}
