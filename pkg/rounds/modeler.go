// Package rounds simulates issuing a new priced financing round against an
// existing cap table.
package rounds

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
	"go.uber.org/zap"
)

// roundNamespace scopes the content-hash identifiers of modeled rounds.
var roundNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("equity-waterfall/modeled-round"))

// Params describes a hypothetical round.
type Params struct {
	Name          string  `json:"name" yaml:"name"`
	PreMoney      float64 `json:"preMoney" yaml:"preMoney"`
	RoundSize     float64 `json:"roundSize" yaml:"roundSize"`
	OurAllocation float64 `json:"ourAllocation" yaml:"ourAllocation"`
}

// DilutionPreview is one shareholder's ownership before and after the round.
// Dilution is in percentage points.
type DilutionPreview struct {
	ShareholderID   string  `json:"shareholderId"`
	ShareholderName string  `json:"shareholderName"`
	BeforePct       float64 `json:"beforePct"`
	AfterPct        float64 `json:"afterPct"`
	Dilution        float64 `json:"dilution"`
}

// Result is the projected outcome of a modeled round. Every slice is freshly
// allocated; nothing aliases the input cap table.
type Result struct {
	DilutionPreview []DilutionPreview     `json:"dilutionPreview"`
	NewSharePrice   float64               `json:"newSharePrice"`
	PostMoney       float64               `json:"postMoney"`
	NewTotalShares  int64                 `json:"newTotalShares"`
	NewRound        captable.FundingRound `json:"newRound"`
	NewHoldings     []captable.Holding    `json:"newHoldings"`
	CapTable        captable.CapTable     `json:"capTable"`
}

// Modeler projects new rounds for a fund.
type Modeler struct {
	logger *zap.Logger
	fund   captable.Fund
	now    func() time.Time
}

// Option configures a Modeler.
type Option func(*Modeler)

// WithClock sets the clock used to date modeled rounds.
func WithClock(now func() time.Time) Option {
	return func(m *Modeler) {
		if now != nil {
			m.now = now
		}
	}
}

// NewModeler creates a round modeler that attributes ourAllocation to fund.
func NewModeler(logger *zap.Logger, fund captable.Fund, opts ...Option) *Modeler {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Modeler{logger: logger, fund: fund, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ModelNewRound simulates issuing the round described by p against ct. The
// second return value is false when the round is not computable (non-positive
// pre-money or round size); in that case the result and error are both nil.
// Invariant violations in ct or p are reported as *captable.ValidationError.
func (m *Modeler) ModelNewRound(ct captable.CapTable, p Params) (*Result, bool, error) {
	if !(p.PreMoney > 0) || !(p.RoundSize > 0) {
		m.logger.Debug("round not computable",
			zap.String("op", "rounds.ModelNewRound"),
			zap.String("company", ct.CompanyID),
			zap.Float64("preMoney", p.PreMoney),
			zap.Float64("roundSize", p.RoundSize),
		)
		return nil, false, nil
	}
	if err := ct.Validate(); err != nil {
		return nil, false, err
	}
	if p.OurAllocation < 0 || math.IsNaN(p.OurAllocation) {
		return nil, false, captable.Invalid("ourAllocation", "must not be negative, got %v", p.OurAllocation)
	}
	if p.OurAllocation > p.RoundSize {
		return nil, false, captable.Invalid("ourAllocation", "%v exceeds round size %v", p.OurAllocation, p.RoundSize)
	}
	if p.OurAllocation > 0 && m.fund.ID == "" {
		return nil, false, captable.Invalid("ourAllocation", "no fund configured to receive the allocation")
	}

	postMoney := p.PreMoney + p.RoundSize
	sharePrice := p.PreMoney / float64(ct.TotalShares)
	newShares, ok := mathutil.RoundShares(p.RoundSize / sharePrice)
	if !ok || newShares > math.MaxInt64-ct.TotalShares {
		return nil, false, captable.Invalid("roundSize", "%v at share price %v issues more shares than a cap table can hold", p.RoundSize, sharePrice)
	}
	newTotalShares := ct.TotalShares + newShares

	var ourShares int64
	if p.OurAllocation > 0 {
		ourShares, ok = mathutil.RoundShares(p.OurAllocation / sharePrice)
		if !ok {
			return nil, false, captable.Invalid("ourAllocation", "%v at share price %v issues more shares than a cap table can hold", p.OurAllocation, sharePrice)
		}
		if ourShares > newShares {
			ourShares = newShares
		}
	}
	// The external tranche takes whatever the fund's rounded tranche leaves,
	// so the issued shares always sum to newShares.
	newInvestorAmount := p.RoundSize - p.OurAllocation
	newInvestorShares := newShares - ourShares

	preview := m.dilutionPreview(ct, ourShares, newTotalShares, p.OurAllocation)
	if newInvestorAmount > 0 {
		preview = append(preview, DilutionPreview{
			ShareholderID:   constants.NewInvestorID,
			ShareholderName: constants.NewInvestorName,
			AfterPct:        ownershipPct(newInvestorShares, newTotalShares),
		})
	}
	sort.SliceStable(preview, func(i, j int) bool {
		return preview[i].AfterPct > preview[j].AfterPct
	})

	var investors []captable.RoundInvestor
	if p.OurAllocation > 0 {
		investors = append(investors, captable.RoundInvestor{
			ShareholderID: m.fund.ID,
			Amount:        p.OurAllocation,
			Shares:        ourShares,
		})
	}
	if newInvestorAmount > 0 {
		investors = append(investors, captable.RoundInvestor{
			ShareholderID: constants.NewInvestorID,
			Amount:        newInvestorAmount,
			Shares:        newInvestorShares,
		})
	}

	date := datetime.FormatDate(m.now().UTC())
	newRound := captable.FundingRound{
		ID:                    roundID(ct.CompanyID, p, date),
		CompanyID:             ct.CompanyID,
		Name:                  p.Name,
		Date:                  date,
		PreMoney:              p.PreMoney,
		RoundSize:             p.RoundSize,
		PostMoney:             postMoney,
		SharePrice:            sharePrice,
		LeadInvestor:          constants.NewLeadInvestor,
		Investors:             investors,
		FounderOwnershipAfter: ownershipPct(ct.ClassShares(constants.ClassCommon), newTotalShares),
	}

	shareClass := captable.ShareClassForRound(p.Name)
	newHoldings, err := mergeInvestors(ct.Holdings, investors, shareClass, newTotalShares)
	if err != nil {
		return nil, false, err
	}

	result := &Result{
		DilutionPreview: preview,
		NewSharePrice:   sharePrice,
		PostMoney:       postMoney,
		NewTotalShares:  newTotalShares,
		NewRound:        newRound,
		NewHoldings:     newHoldings,
		CapTable:        m.nextCapTable(ct, newRound, newHoldings, shareClass),
	}

	m.logger.Debug("modeled round",
		zap.String("op", "rounds.ModelNewRound"),
		zap.String("company", ct.CompanyID),
		zap.String("round", p.Name),
		zap.String("shareClass", shareClass),
		zap.Float64("sharePrice", sharePrice),
		zap.Int64("newShares", newShares),
		zap.Int64("newTotalShares", newTotalShares),
	)

	return result, true, nil
}

func (m *Modeler) dilutionPreview(ct captable.CapTable, ourShares, newTotalShares int64, ourAllocation float64) []DilutionPreview {
	order, shares := captable.SharesByShareholder(ct.Holdings)
	preview := make([]DilutionPreview, 0, len(order)+2)

	fundListed := false
	for _, id := range order {
		held := shares[id]
		var additional int64
		if id == m.fund.ID {
			additional = ourShares
			fundListed = true
		}
		beforePct := mathutil.CalculatePercentage(float64(held), float64(ct.TotalShares))
		afterPct := mathutil.CalculatePercentage(float64(held+additional), float64(newTotalShares))
		preview = append(preview, DilutionPreview{
			ShareholderID:   id,
			ShareholderName: m.shareholderName(ct, id),
			BeforePct:       mathutil.Round(beforePct),
			AfterPct:        mathutil.Round(afterPct),
			Dilution:        mathutil.Round(beforePct - afterPct),
		})
	}

	if ourAllocation > 0 && !fundListed {
		preview = append(preview, DilutionPreview{
			ShareholderID:   m.fund.ID,
			ShareholderName: m.fund.Name,
			AfterPct:        ownershipPct(ourShares, newTotalShares),
		})
	}
	return preview
}

func (m *Modeler) shareholderName(ct captable.CapTable, id string) string {
	if s, ok := ct.Shareholder(id); ok && s.Name != "" {
		return s.Name
	}
	if id == m.fund.ID && m.fund.Name != "" {
		return m.fund.Name
	}
	return constants.UnknownShareholderName
}

// nextCapTable assembles the hypothetical cap table after the round.
func (m *Modeler) nextCapTable(ct captable.CapTable, round captable.FundingRound, holdings []captable.Holding, shareClass string) captable.CapTable {
	next := ct.Clone()
	next.Holdings = holdings
	next.TotalShares = 0
	for _, h := range holdings {
		next.TotalShares += h.Shares
	}
	next.Rounds = append(next.Rounds, round)

	for _, inv := range round.Investors {
		if _, ok := next.Shareholder(inv.ShareholderID); ok {
			continue
		}
		name := constants.NewInvestorName
		if inv.ShareholderID == m.fund.ID {
			name = m.fund.Name
		}
		next.Shareholders = append(next.Shareholders, captable.Shareholder{
			ID:   inv.ShareholderID,
			Name: name,
			Type: captable.ShareholderFund,
		})
	}

	if _, ok := next.Pref(shareClass); !ok {
		next.LiquidationPrefs = append(next.LiquidationPrefs, captable.LiquidationPref{
			ShareClass: shareClass,
			Multiple:   constants.DefaultLiquidationMultiple,
		})
	}
	return next
}

// mergeInvestors clones holdings and adds each investor's tranche to its
// holding in shareClass, creating the holding when absent.
func mergeInvestors(holdings []captable.Holding, investors []captable.RoundInvestor, shareClass string, totalShares int64) ([]captable.Holding, error) {
	merged := make([]captable.Holding, len(holdings), len(holdings)+len(investors))
	copy(merged, holdings)

	for _, inv := range investors {
		found := false
		for i := range merged {
			if merged[i].ShareholderID == inv.ShareholderID && merged[i].ShareClass == shareClass {
				merged[i].Shares += inv.Shares
				merged[i].InvestmentAmount += inv.Amount
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, captable.Holding{
				ShareholderID:    inv.ShareholderID,
				ShareClass:       shareClass,
				Shares:           inv.Shares,
				InvestmentAmount: inv.Amount,
			})
		}
	}

	return captable.RecomputeOwnership(merged, totalShares)
}

func ownershipPct(shares, totalShares int64) float64 {
	return mathutil.Round(mathutil.CalculatePercentage(float64(shares), float64(totalShares)))
}

// roundID derives a deterministic identifier from the round's content.
func roundID(companyID string, p Params, date string) string {
	content := fmt.Sprintf("%s|%s|%.2f|%.2f|%.2f|%s", companyID, p.Name, p.PreMoney, p.RoundSize, p.OurAllocation, date)
	return "round_modeled_" + uuid.NewSHA1(roundNamespace, []byte(content)).String()
}
