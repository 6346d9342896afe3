// Package testutil provides cap table fixtures shared by package tests.
package testutil

import (
	"time"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
)

// Fund identifiers used by every fixture.
const (
	FundID   = "sh_fund_cvj"
	FundName = "CVJ Capital"
)

// ClockAt returns a clock frozen at midnight UTC on date (YYYY-MM-DD).
func ClockAt(date string) func() time.Time {
	t := datetime.MustParseTime(constants.DateLayout, date)
	return func() time.Time { return t }
}

// Fund returns the fixture fund.
func Fund() captable.Fund {
	return captable.Fund{ID: FundID, Name: FundName}
}

// Cap returns a pointer to a participation cap multiple.
func Cap(multiple float64) *float64 {
	return &multiple
}

// SeriesAOnly returns a company whose only preferred class is a 1x
// non-participating Series A holding 20% of the shares for $8M invested.
// The fund owns half of the Series A.
func SeriesAOnly() captable.CapTable {
	ct := captable.CapTable{
		CompanyID: "acme",
		Shareholders: []captable.Shareholder{
			{ID: "founder_1", Name: "Alex Chen", Type: captable.ShareholderFounder},
			{ID: "lead_a", Name: "Summit Partners", Type: captable.ShareholderFund},
			{ID: FundID, Name: FundName, Type: captable.ShareholderFund},
		},
		Holdings: []captable.Holding{
			{ShareholderID: "founder_1", ShareClass: constants.ClassCommon, Shares: 8_000_000},
			{ShareholderID: "lead_a", ShareClass: constants.ClassSeriesA, Shares: 1_000_000, InvestmentAmount: 4_000_000},
			{ShareholderID: FundID, ShareClass: constants.ClassSeriesA, Shares: 1_000_000, InvestmentAmount: 4_000_000},
		},
		Rounds: []captable.FundingRound{
			{
				ID: "round_acme_0", CompanyID: "acme", Name: "Series A", Date: "2022-01-01",
				PreMoney: 32_000_000, RoundSize: 8_000_000, PostMoney: 40_000_000, SharePrice: 4,
				LeadInvestor: "Summit Partners",
				Investors: []captable.RoundInvestor{
					{ShareholderID: "lead_a", Amount: 4_000_000, Shares: 1_000_000},
					{ShareholderID: FundID, Amount: 4_000_000, Shares: 1_000_000},
				},
				FounderOwnershipAfter: 80,
			},
		},
		LiquidationPrefs: []captable.LiquidationPref{
			{ShareClass: constants.ClassSeriesA, Multiple: 1},
		},
		TotalShares: 10_000_000,
	}
	return withOwnership(ct)
}

// DilutionScenario returns a 10,000,000 share company in which a founder holds
// 6,000,000 common shares, the option pool 1,000,000, and the fund a 3,000,000
// share Series Seed position.
func DilutionScenario() captable.CapTable {
	ct := captable.CapTable{
		CompanyID: "dilute",
		Shareholders: []captable.Shareholder{
			{ID: "founder_1", Name: "Sam Patel", Type: captable.ShareholderFounder},
			{ID: "pool", Name: "Employee Option Pool", Type: captable.ShareholderOptionPool},
			{ID: FundID, Name: FundName, Type: captable.ShareholderFund},
		},
		Holdings: []captable.Holding{
			{ShareholderID: "founder_1", ShareClass: constants.ClassCommon, Shares: 6_000_000},
			{ShareholderID: "pool", ShareClass: constants.ClassOptionPool, Shares: 1_000_000},
			{ShareholderID: FundID, ShareClass: constants.ClassSeriesSeed, Shares: 3_000_000, InvestmentAmount: 2_000_000},
		},
		Rounds: []captable.FundingRound{
			{
				ID: "round_dilute_0", CompanyID: "dilute", Name: "Seed", Date: "2023-03-01",
				PreMoney: 4_666_667, RoundSize: 2_000_000, PostMoney: 6_666_667, SharePrice: 0.6667,
				LeadInvestor: FundName,
				Investors: []captable.RoundInvestor{
					{ShareholderID: FundID, Amount: 2_000_000, Shares: 3_000_000},
				},
				FounderOwnershipAfter: 60,
			},
		},
		LiquidationPrefs: []captable.LiquidationPref{
			{ShareClass: constants.ClassSeriesSeed, Multiple: 1},
		},
		TotalShares: 10_000_000,
	}
	return withOwnership(ct)
}

// MultiClass returns a company with a Series Seed and a Series A stack, both
// 1x non-participating. Series A was issued last and is senior.
//
//	Common       6,000,000 shares
//	Option Pool  1,000,000 shares
//	Series Seed  1,000,000 shares, $1M invested (fund 600k shares / $600k)
//	Series A     2,000,000 shares, $8M invested (fund 200k shares / $800k)
func MultiClass() captable.CapTable {
	ct := captable.CapTable{
		CompanyID: "multi",
		Shareholders: []captable.Shareholder{
			{ID: "founder_1", Name: "Jordan Kim", Type: captable.ShareholderFounder},
			{ID: "founder_2", Name: "Taylor Wu", Type: captable.ShareholderFounder},
			{ID: "pool", Name: "Employee Option Pool", Type: captable.ShareholderOptionPool},
			{ID: FundID, Name: FundName, Type: captable.ShareholderFund},
			{ID: "angel_1", Name: "Ravi Sundaram", Type: captable.ShareholderAngel},
			{ID: "lead_a", Name: "Ironbridge Capital", Type: captable.ShareholderFund},
		},
		Holdings: []captable.Holding{
			{ShareholderID: "founder_1", ShareClass: constants.ClassCommon, Shares: 3_000_000},
			{ShareholderID: "founder_2", ShareClass: constants.ClassCommon, Shares: 3_000_000},
			{ShareholderID: "pool", ShareClass: constants.ClassOptionPool, Shares: 1_000_000},
			{ShareholderID: FundID, ShareClass: constants.ClassSeriesSeed, Shares: 600_000, InvestmentAmount: 600_000},
			{ShareholderID: "angel_1", ShareClass: constants.ClassSeriesSeed, Shares: 400_000, InvestmentAmount: 400_000},
			{ShareholderID: "lead_a", ShareClass: constants.ClassSeriesA, Shares: 1_800_000, InvestmentAmount: 7_200_000},
			{ShareholderID: FundID, ShareClass: constants.ClassSeriesA, Shares: 200_000, InvestmentAmount: 800_000},
		},
		Rounds: []captable.FundingRound{
			{
				ID: "round_multi_0", CompanyID: "multi", Name: "Seed", Date: "2021-01-10",
				PreMoney: 7_000_000, RoundSize: 1_000_000, PostMoney: 8_000_000, SharePrice: 1,
				LeadInvestor: FundName,
				Investors: []captable.RoundInvestor{
					{ShareholderID: FundID, Amount: 600_000, Shares: 600_000},
					{ShareholderID: "angel_1", Amount: 400_000, Shares: 400_000},
				},
				FounderOwnershipAfter: 75,
			},
			{
				ID: "round_multi_1", CompanyID: "multi", Name: "Series A", Date: "2022-06-01",
				PreMoney: 32_000_000, RoundSize: 8_000_000, PostMoney: 40_000_000, SharePrice: 4,
				LeadInvestor: "Ironbridge Capital",
				Investors: []captable.RoundInvestor{
					{ShareholderID: "lead_a", Amount: 7_200_000, Shares: 1_800_000},
					{ShareholderID: FundID, Amount: 800_000, Shares: 200_000},
				},
				FounderOwnershipAfter: 60,
			},
		},
		LiquidationPrefs: []captable.LiquidationPref{
			{ShareClass: constants.ClassSeriesSeed, Multiple: 1},
			{ShareClass: constants.ClassSeriesA, Multiple: 1},
		},
		TotalShares: 10_000_000,
	}
	return withOwnership(ct)
}

// Participating returns MultiClass with a participating Series A capped at the
// given multiple (nil for uncapped).
func Participating(participationCap *float64) captable.CapTable {
	ct := MultiClass()
	for i := range ct.LiquidationPrefs {
		if ct.LiquidationPrefs[i].ShareClass == constants.ClassSeriesA {
			ct.LiquidationPrefs[i].Participating = true
			ct.LiquidationPrefs[i].ParticipationCap = participationCap
		}
	}
	return ct
}

func withOwnership(ct captable.CapTable) captable.CapTable {
	holdings, err := captable.RecomputeOwnership(ct.Holdings, ct.TotalShares)
	if err != nil {
		panic(err)
	}
	ct.Holdings = holdings
	return ct
}
