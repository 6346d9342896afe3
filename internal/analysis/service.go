// Package analysis runs the cap table engines against configured or supplied
// companies. The CLI and the HTTP server both go through a Service.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/rounds"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"go.uber.org/zap"
)

// ErrUnknownCompany is returned when a company id is not configured.
var ErrUnknownCompany = errors.New("unknown company")

// Service wires the engines for one fund.
type Service struct {
	logger      *zap.Logger
	companies   []config.Company
	fund        captable.Fund
	conversion  waterfall.ConversionStrategy
	sensitivity sensitivity.Options
	now         func() time.Time

	engine   *waterfall.Engine
	modeler  *rounds.Modeler
	analyzer *sensitivity.Analyzer
}

// Option configures a Service.
type Option func(*Service)

// WithClock fixes the clock used for round dates and holding periods.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConversion overrides the configured conversion strategy.
func WithConversion(strategy waterfall.ConversionStrategy) Option {
	return func(s *Service) {
		if strategy != "" {
			s.conversion = strategy
		}
	}
}

// NewService builds a service from conf. An unparseable conversion strategy
// falls back to single-pass; ValidateConfiguration reports it.
func NewService(logger *zap.Logger, conf *config.Configuration, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf == nil {
		conf = &config.Configuration{}
	}

	conversion, err := conf.Waterfall.Strategy()
	if err != nil {
		conversion = waterfall.ConversionSinglePass
	}

	s := &Service{
		logger:      logger,
		companies:   uniqueCompanies(conf.Companies),
		fund:        conf.Fund,
		conversion:  conversion,
		sensitivity: conf.Sensitivity.Options(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wire()
	return s
}

func (s *Service) wire() {
	s.engine = waterfall.NewEngine(s.logger, s.fund.ID,
		waterfall.WithClock(s.now),
		waterfall.WithConversion(s.conversion),
	)
	s.modeler = rounds.NewModeler(s.logger, s.fund, rounds.WithClock(s.now))
	s.analyzer = sensitivity.NewAnalyzer(s.logger, s.engine)
}

// ForFund returns a copy of the service tracking a different fund. An empty
// fund id returns the receiver unchanged.
func (s *Service) ForFund(fund captable.Fund) *Service {
	if fund.ID == "" || fund == s.fund {
		return s
	}
	clone := *s
	clone.fund = fund
	clone.wire()
	return &clone
}

// Fund returns the tracked fund.
func (s *Service) Fund() captable.Fund {
	return s.fund
}

// Conversion returns the conversion strategy in use.
func (s *Service) Conversion() waterfall.ConversionStrategy {
	return s.engine.Conversion()
}

// Companies returns the configured companies, first entry per id.
func (s *Service) Companies() []config.Company {
	return append([]config.Company(nil), s.companies...)
}

// Company looks up a configured company.
func (s *Service) Company(id string) (config.Company, error) {
	for _, c := range s.companies {
		if c.ID == id {
			return c, nil
		}
	}
	return config.Company{}, fmt.Errorf("%w: %s", ErrUnknownCompany, id)
}

// Ownership validates ct and returns a copy with ownership recomputed from
// share counts.
func (s *Service) Ownership(ct captable.CapTable) (captable.CapTable, error) {
	if err := ct.Validate(); err != nil {
		return captable.CapTable{}, err
	}
	holdings, err := captable.RecomputeOwnership(ct.Holdings, ct.TotalShares)
	if err != nil {
		return captable.CapTable{}, err
	}
	out := ct.Clone()
	out.Holdings = holdings
	return out, nil
}

// ModelRound models a new round for the tracked fund. ok is false when the
// round parameters are not computable.
func (s *Service) ModelRound(ct captable.CapTable, p rounds.Params) (*rounds.Result, bool, error) {
	result, ok, err := s.modeler.ModelNewRound(ct, p)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.logger.Info("modeled round",
			zap.String("op", "analysis.ModelRound"),
			zap.String("company", ct.CompanyID),
			zap.String("round", p.Name),
			zap.Float64("postMoney", result.PostMoney),
		)
	}
	return result, ok, nil
}

// Waterfall distributes exitValuation across ct.
func (s *Service) Waterfall(ct captable.CapTable, exitValuation float64) (*waterfall.Result, error) {
	result, err := s.engine.ComputeWaterfall(ct, exitValuation)
	if err != nil {
		return nil, err
	}
	s.logger.Info("computed waterfall",
		zap.String("op", "analysis.Waterfall"),
		zap.String("company", ct.CompanyID),
		zap.Float64("exitValuation", exitValuation),
		zap.Float64("distributed", result.TotalDistributed()),
		zap.String("conversion", string(s.engine.Conversion())),
	)
	return result, nil
}

// ExitScenarios evaluates every configured exit valuation of a company.
func (s *Service) ExitScenarios(company config.Company) ([]*waterfall.Result, error) {
	results := make([]*waterfall.Result, 0, len(company.ExitScenarios))
	for _, exit := range company.ExitScenarios {
		result, err := s.Waterfall(company.CapTable, exit)
		if err != nil {
			return nil, fmt.Errorf("exit scenario %v for %s: %w", exit, company.ID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// SensitivityReport is a sweep together with the share classes it covers, in
// waterfall row order.
type SensitivityReport struct {
	Classes []string            `json:"classes"`
	Points  []sensitivity.Point `json:"points"`
}

// Sensitivity sweeps exit valuations for ct. Zero fields in opts take the
// configured defaults.
func (s *Service) Sensitivity(ctx context.Context, ct captable.CapTable, opts sensitivity.Options) (*SensitivityReport, error) {
	if opts.Steps == 0 {
		opts.Steps = s.sensitivity.Steps
	}
	if opts.MaxExit == 0 {
		opts.MaxExit = s.sensitivity.MaxExit
	}
	if opts.Workers == 0 {
		opts.Workers = s.sensitivity.Workers
	}

	points, err := s.analyzer.ComputeSensitivity(ctx, ct, opts)
	if err != nil {
		return nil, err
	}

	// The zero-exit waterfall lists every class in row order.
	base, err := s.engine.ComputeWaterfall(ct, 0)
	if err != nil {
		return nil, err
	}
	classes := make([]string, 0, len(base.Rows))
	for _, row := range base.Rows {
		classes = append(classes, row.ShareClass)
	}

	s.logger.Info("computed sensitivity",
		zap.String("op", "analysis.Sensitivity"),
		zap.String("company", ct.CompanyID),
		zap.Int("points", len(points)),
	)
	return &SensitivityReport{Classes: classes, Points: points}, nil
}

// PortfolioReport is the fund's positions and their summary.
type PortfolioReport struct {
	Positions []portfolio.Position `json:"positions"`
	Summary   portfolio.Summary    `json:"summary"`
}

// Portfolio builds the tracked fund's position in each company and
// summarizes them. Companies are reported in the order given.
func (s *Service) Portfolio(companies []config.Company) (*PortfolioReport, error) {
	positions := make([]portfolio.Position, 0, len(companies))
	for _, c := range companies {
		if err := c.CapTable.Validate(); err != nil {
			return nil, fmt.Errorf("company %s: %w", c.ID, err)
		}
		positions = append(positions, portfolio.NewPosition(c.CapTable, s.fund.ID, c.Company, c.ImpliedValuation))
	}
	summary := portfolio.ComputeSummary(positions)

	s.logger.Info("computed portfolio summary",
		zap.String("op", "analysis.Portfolio"),
		zap.Int("companies", len(companies)),
		zap.Int("activePositions", summary.ActivePositions),
	)
	return &PortfolioReport{Positions: positions, Summary: summary}, nil
}

func uniqueCompanies(companies []config.Company) []config.Company {
	seen := make(map[string]bool, len(companies))
	out := make([]config.Company, 0, len(companies))
	for _, c := range companies {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
