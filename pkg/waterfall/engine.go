// Package waterfall distributes an exit valuation across the share classes of
// a cap table: liquidation preferences in seniority order, participation,
// conversion of non-participating preferred, and the common distribution.
package waterfall

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/datetime"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
	"go.uber.org/zap"
)

// ConversionStrategy selects how non-participating preferred classes decide
// whether to convert to common.
type ConversionStrategy string

const (
	// ConversionSinglePass lets every class decide independently against the
	// full exit valuation, without seeing the other classes' choices.
	ConversionSinglePass ConversionStrategy = "single-pass"

	// ConversionIterative converts one class at a time and re-runs the whole
	// waterfall after each conversion until no class gains by converting.
	ConversionIterative ConversionStrategy = "iterative"
)

// ParseConversionStrategy maps a configuration value to a strategy. The empty
// string selects ConversionSinglePass.
func ParseConversionStrategy(value string) (ConversionStrategy, error) {
	switch ConversionStrategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", ConversionSinglePass:
		return ConversionSinglePass, nil
	case ConversionIterative:
		return ConversionIterative, nil
	default:
		return "", fmt.Errorf("unknown conversion strategy %q (expected %s or %s)", value, ConversionSinglePass, ConversionIterative)
	}
}

// Row is the payout to one share class. TotalProceeds is rounded to whole
// currency units; the component payouts are kept to the cent.
type Row struct {
	ShareClass          string  `json:"shareClass"`
	Shares              int64   `json:"shares"`
	InvestedAmount      float64 `json:"investedAmount"`
	LiquidationPayout   float64 `json:"liquidationPayout"`
	ParticipationPayout float64 `json:"participationPayout"`
	CommonPayout        float64 `json:"commonPayout"`
	TotalProceeds       float64 `json:"totalProceeds"`
	MOIC                float64 `json:"moic"`
	Converted           bool    `json:"converted"`
}

// Result is the full distribution at one exit valuation. FundIRR is nil when
// the fund has no investment or receives nothing.
type Result struct {
	Rows          []Row    `json:"rows"`
	FundProceeds  float64  `json:"fundProceeds"`
	FundMOIC      float64  `json:"fundMoic"`
	FundIRR       *float64 `json:"fundIrr"`
	ExitValuation float64  `json:"exitValuation"`
}

// Row returns the row for a share class.
func (r Result) Row(shareClass string) (Row, bool) {
	for _, row := range r.Rows {
		if row.ShareClass == shareClass {
			return row, true
		}
	}
	return Row{}, false
}

// TotalDistributed sums TotalProceeds across rows.
func (r Result) TotalDistributed() float64 {
	var total float64
	for _, row := range r.Rows {
		total += row.TotalProceeds
	}
	return total
}

// Engine computes exit waterfalls for a fund.
type Engine struct {
	logger     *zap.Logger
	fundID     string
	now        func() time.Time
	conversion ConversionStrategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for the holding period of the IRR estimate.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConversion sets the conversion strategy.
func WithConversion(strategy ConversionStrategy) Option {
	return func(e *Engine) {
		if strategy != "" {
			e.conversion = strategy
		}
	}
}

// NewEngine creates a waterfall engine reporting fund metrics for the
// shareholder fundID. If logger is nil, a no-op logger is used.
func NewEngine(logger *zap.Logger, fundID string, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:     logger,
		fundID:     fundID,
		now:        time.Now,
		conversion: ConversionSinglePass,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Conversion returns the engine's conversion strategy.
func (e *Engine) Conversion() ConversionStrategy {
	return e.conversion
}

// ComputeWaterfall distributes exitValuation across the share classes of ct.
// Cap table invariant violations and negative or non-finite valuations are
// reported as *captable.ValidationError.
func (e *Engine) ComputeWaterfall(ct captable.CapTable, exitValuation float64) (*Result, error) {
	if exitValuation < 0 || math.IsNaN(exitValuation) || math.IsInf(exitValuation, 0) {
		return nil, captable.Invalid("exitValuation", "must be a non-negative amount, got %v", exitValuation)
	}
	if err := ct.Validate(); err != nil {
		return nil, err
	}

	s := buildStack(ct)

	var a allocation
	switch e.conversion {
	case ConversionIterative:
		a = s.iterate(exitValuation, func(class string, before, after float64) {
			e.logger.Debug("share class converts to common",
				zap.String("op", "waterfall.ComputeWaterfall"),
				zap.String("company", ct.CompanyID),
				zap.String("shareClass", class),
				zap.Float64("before", before),
				zap.Float64("after", after),
			)
		})
	default:
		a = s.allocate(exitValuation, nil)
	}

	result := &Result{
		Rows:          make([]Row, 0, len(s.rowOrder)),
		ExitValuation: exitValuation,
	}
	for _, name := range s.rowOrder {
		c := s.classes[name]
		total := a.total(name)
		result.Rows = append(result.Rows, Row{
			ShareClass:          name,
			Shares:              c.shares,
			InvestedAmount:      c.invested,
			LiquidationPayout:   mathutil.Round(a.liquidation[name]),
			ParticipationPayout: mathutil.Round(a.participation[name]),
			CommonPayout:        mathutil.Round(a.common[name]),
			TotalProceeds:       mathutil.RoundWhole(total),
			MOIC:                moic(total, c.invested),
			Converted:           a.converted[name],
		})
	}

	e.fundMetrics(ct, s, result)

	e.logger.Debug("computed waterfall",
		zap.String("op", "waterfall.ComputeWaterfall"),
		zap.String("company", ct.CompanyID),
		zap.String("conversion", string(e.conversion)),
		zap.Float64("exitValuation", exitValuation),
		zap.Float64("fundProceeds", result.FundProceeds),
		zap.Int("classes", len(result.Rows)),
	)

	return result, nil
}

// fundMetrics attributes each class's rounded proceeds to the fund pro rata
// to its shares in that class.
func (e *Engine) fundMetrics(ct captable.CapTable, s stack, result *Result) {
	var invested, proceeds float64
	for _, h := range ct.HoldingsOf(e.fundID) {
		invested += h.InvestmentAmount
		c, ok := s.classes[h.ShareClass]
		if !ok || c.shares == 0 {
			continue
		}
		row, ok := result.Row(h.ShareClass)
		if !ok {
			continue
		}
		proceeds += row.TotalProceeds * float64(h.Shares) / float64(c.shares)
	}

	result.FundProceeds = mathutil.RoundWhole(proceeds)
	result.FundMOIC = moic(proceeds, invested)
	if invested <= 0 || proceeds <= 0 {
		return
	}

	years := e.yearsHeld(ct.Rounds)
	growth := math.Pow(proceeds/invested, 1/years)
	if math.IsInf(growth, 0) || math.IsNaN(growth) {
		return
	}
	irr := mathutil.Round((growth - 1) * constants.PercentageMultiplier)
	result.FundIRR = &irr
}

// yearsHeld estimates the holding period as the time since the average round
// date, floored at MinYearsHeld.
func (e *Engine) yearsHeld(rounds []captable.FundingRound) float64 {
	now := e.now()
	dates := make([]time.Time, 0, len(rounds))
	for _, r := range rounds {
		if d, err := datetime.ParseDate(r.Date); err == nil {
			dates = append(dates, d)
		}
	}
	mean, ok := datetime.MeanTime(dates)
	if !ok {
		mean = now
	}
	return max(constants.MinYearsHeld, datetime.YearsBetween(mean, now))
}

func moic(proceeds, invested float64) float64 {
	if invested <= 0 {
		return 0
	}
	return mathutil.Round(proceeds / invested)
}
