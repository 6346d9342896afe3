package analysis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/portfolio"
	"github.com/iwvelando/equity-waterfall/pkg/rounds"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/testutil"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"go.uber.org/zap"
)

func fixedClock() time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		Fund:        testutil.Fund(),
		Sensitivity: config.SensitivityConfig{Steps: 4, MaxExit: 400_000_000, Workers: 2},
		Companies: []config.Company{
			{
				Company:          portfolio.Company{ID: "acme", Name: "Acme Robotics", Stage: "Series A"},
				ImpliedValuation: 60_000_000,
				ExitScenarios:    []float64{5_000_000, 20_000_000, 100_000_000},
				CapTable:         testutil.SeriesAOnly(),
			},
			{
				Company:          portfolio.Company{ID: "multi", Name: "Northwind Bio", Stage: "Series A"},
				ImpliedValuation: 48_000_000,
				CapTable:         testutil.MultiClass(),
			},
			{
				Company:  portfolio.Company{ID: "acme", Name: "Duplicate"},
				CapTable: testutil.SeriesAOnly(),
			},
		},
	}
}

func newTestService(opts ...Option) *Service {
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	return NewService(zap.NewNop(), testConfig(), opts...)
}

func TestCompanyLookup(t *testing.T) {
	s := newTestService()

	if got := len(s.Companies()); got != 2 {
		t.Errorf("Companies() returned %d companies, expected 2", got)
	}

	company, err := s.Company("acme")
	if err != nil {
		t.Fatalf("Company(acme) unexpected error: %v", err)
	}
	if company.Name != "Acme Robotics" {
		t.Errorf("Company(acme).Name = %s, expected the first entry", company.Name)
	}

	if _, err := s.Company("nope"); !errors.Is(err, ErrUnknownCompany) {
		t.Errorf("Company(nope) error = %v, expected ErrUnknownCompany", err)
	}
}

func TestNewServiceConversion(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		opts       []Option
		expected   waterfall.ConversionStrategy
	}{
		{name: "Default", expected: waterfall.ConversionSinglePass},
		{name: "Configured iterative", configured: "iterative", expected: waterfall.ConversionIterative},
		{name: "Unknown falls back", configured: "greedy", expected: waterfall.ConversionSinglePass},
		{
			name:     "Option overrides",
			opts:     []Option{WithConversion(waterfall.ConversionIterative)},
			expected: waterfall.ConversionIterative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testConfig()
			conf.Waterfall.Conversion = tt.configured
			s := NewService(nil, conf, tt.opts...)
			if s.Conversion() != tt.expected {
				t.Errorf("Conversion() = %s, expected %s", s.Conversion(), tt.expected)
			}
		})
	}
}

func TestOwnership(t *testing.T) {
	s := newTestService()

	ct := testutil.SeriesAOnly()
	for i := range ct.Holdings {
		ct.Holdings[i].OwnershipPct = 0
	}

	out, err := s.Ownership(ct)
	if err != nil {
		t.Fatalf("Ownership() unexpected error: %v", err)
	}
	if out.Holdings[0].OwnershipPct != 80 {
		t.Errorf("founder OwnershipPct = %v, expected 80", out.Holdings[0].OwnershipPct)
	}
	if ct.Holdings[0].OwnershipPct != 0 {
		t.Errorf("Ownership() mutated its input")
	}

	ct.TotalShares = 0
	if _, err := s.Ownership(ct); !captable.IsValidation(err) {
		t.Errorf("Ownership() error = %v, expected a validation error", err)
	}
}

func TestModelRound(t *testing.T) {
	s := newTestService()

	result, ok, err := s.ModelRound(testutil.DilutionScenario(), rounds.Params{Name: "Series A", PreMoney: 10_000_000, RoundSize: 2_500_000})
	if err != nil || !ok {
		t.Fatalf("ModelRound() = %v, %v", ok, err)
	}
	if result.PostMoney != 12_500_000 {
		t.Errorf("PostMoney = %v, expected 12500000", result.PostMoney)
	}
	if result.NewRound.Date != "2024-01-01" {
		t.Errorf("NewRound.Date = %s, expected the service clock date", result.NewRound.Date)
	}

	result, ok, err = s.ModelRound(testutil.DilutionScenario(), rounds.Params{Name: "Series A", RoundSize: 2_500_000})
	if err != nil || ok || result != nil {
		t.Errorf("ModelRound() with zero pre-money = %v, %v, %v, expected not computable", result, ok, err)
	}

	_, _, err = s.ModelRound(testutil.DilutionScenario(), rounds.Params{Name: "Series A", PreMoney: 10_000_000, RoundSize: 1_000_000, OurAllocation: 2_000_000})
	if !captable.IsValidation(err) {
		t.Errorf("ModelRound() error = %v, expected a validation error", err)
	}
}

func TestWaterfall(t *testing.T) {
	s := newTestService()

	result, err := s.Waterfall(testutil.SeriesAOnly(), 100_000_000)
	if err != nil {
		t.Fatalf("Waterfall() unexpected error: %v", err)
	}
	row, ok := result.Row(constants.ClassSeriesA)
	if !ok || row.TotalProceeds != 20_000_000 || !row.Converted {
		t.Errorf("Series A row = %+v", row)
	}
	if result.FundProceeds != 10_000_000 {
		t.Errorf("FundProceeds = %v, expected 10000000", result.FundProceeds)
	}

	if _, err := s.Waterfall(testutil.SeriesAOnly(), -1); !captable.IsValidation(err) {
		t.Errorf("Waterfall(-1) error = %v, expected a validation error", err)
	}
}

func TestExitScenarios(t *testing.T) {
	s := newTestService()
	company, err := s.Company("acme")
	if err != nil {
		t.Fatalf("Company(acme) unexpected error: %v", err)
	}

	results, err := s.ExitScenarios(company)
	if err != nil {
		t.Fatalf("ExitScenarios() unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ExitScenarios() returned %d results, expected 3", len(results))
	}

	expected := []float64{5_000_000, 8_000_000, 20_000_000}
	for i, result := range results {
		if result.ExitValuation != company.ExitScenarios[i] {
			t.Errorf("result %d ExitValuation = %v, expected %v", i, result.ExitValuation, company.ExitScenarios[i])
		}
		row, _ := result.Row(constants.ClassSeriesA)
		if row.TotalProceeds != expected[i] {
			t.Errorf("result %d Series A proceeds = %v, expected %v", i, row.TotalProceeds, expected[i])
		}
	}
}

func TestSensitivity(t *testing.T) {
	s := newTestService()

	report, err := s.Sensitivity(context.Background(), testutil.SeriesAOnly(), sensitivity.Options{})
	if err != nil {
		t.Fatalf("Sensitivity() unexpected error: %v", err)
	}
	if len(report.Classes) != 2 || report.Classes[0] != constants.ClassCommon || report.Classes[1] != constants.ClassSeriesA {
		t.Errorf("Classes = %v, expected [Common Series A]", report.Classes)
	}
	if len(report.Points) != 5 {
		t.Fatalf("got %d points, expected the configured 4 steps plus one", len(report.Points))
	}
	point := report.Points[1]
	if point.ExitValuation != 100_000_000 || point.Proceeds[constants.ClassSeriesA] != 20_000_000 {
		t.Errorf("point 1 = %+v", point)
	}

	report, err = s.Sensitivity(context.Background(), testutil.SeriesAOnly(), sensitivity.Options{Steps: 2, MaxExit: 10_000_000})
	if err != nil {
		t.Fatalf("Sensitivity() unexpected error: %v", err)
	}
	if len(report.Points) != 3 || report.Points[2].ExitValuation != 10_000_000 {
		t.Errorf("explicit options not applied: %+v", report.Points)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Sensitivity(ctx, testutil.SeriesAOnly(), sensitivity.Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Sensitivity() with cancelled context error = %v, expected context.Canceled", err)
	}
}

func TestPortfolio(t *testing.T) {
	s := newTestService()

	report, err := s.Portfolio(s.Companies())
	if err != nil {
		t.Fatalf("Portfolio() unexpected error: %v", err)
	}
	if len(report.Positions) != 2 {
		t.Fatalf("got %d positions, expected 2", len(report.Positions))
	}

	acme := report.Positions[0]
	if acme.CheckSize != 4_000_000 || acme.OwnershipPct != 10 || acme.UnrealizedValue != 6_000_000 || acme.MOIC != 1.5 {
		t.Errorf("acme position = %+v", acme)
	}
	multi := report.Positions[1]
	if multi.CheckSize != 1_400_000 || multi.OwnershipPct != 8 || multi.UnrealizedValue != 3_840_000 || multi.MOIC != 2.74 {
		t.Errorf("multi position = %+v", multi)
	}

	expected := portfolio.Summary{
		TotalDeployed:   5_400_000,
		TotalFairValue:  9_840_000,
		BlendedMOIC:     1.82,
		AvgOwnership:    9,
		ActivePositions: 2,
	}
	if math.Abs(report.Summary.TotalDeployed-expected.TotalDeployed) > constants.CurrencyTolerance ||
		math.Abs(report.Summary.TotalFairValue-expected.TotalFairValue) > constants.CurrencyTolerance ||
		report.Summary.BlendedMOIC != expected.BlendedMOIC ||
		report.Summary.AvgOwnership != expected.AvgOwnership ||
		report.Summary.ActivePositions != expected.ActivePositions {
		t.Errorf("Summary = %+v, expected %+v", report.Summary, expected)
	}

	broken := s.Companies()
	broken[0].CapTable.TotalShares = 0
	if _, err := s.Portfolio(broken); !captable.IsValidation(err) {
		t.Errorf("Portfolio() error = %v, expected a validation error", err)
	}
}

func TestForFund(t *testing.T) {
	s := newTestService()

	if s.ForFund(captable.Fund{}) != s || s.ForFund(testutil.Fund()) != s {
		t.Errorf("ForFund() with the same or empty fund should return the receiver")
	}

	other := s.ForFund(captable.Fund{ID: "lead_a", Name: "Summit Partners"})
	if other.Fund().ID != "lead_a" || s.Fund().ID != testutil.FundID {
		t.Fatalf("ForFund() funds = %s / %s", other.Fund().ID, s.Fund().ID)
	}

	result, err := other.Waterfall(testutil.SeriesAOnly(), 100_000_000)
	if err != nil {
		t.Fatalf("Waterfall() unexpected error: %v", err)
	}
	if result.FundProceeds != 10_000_000 {
		t.Errorf("lead_a FundProceeds = %v, expected 10000000", result.FundProceeds)
	}

	report, err := other.Portfolio(other.Companies())
	if err != nil {
		t.Fatalf("Portfolio() unexpected error: %v", err)
	}
	if report.Summary.TotalDeployed != 4_000_000+7_200_000 {
		t.Errorf("lead_a TotalDeployed = %v", report.Summary.TotalDeployed)
	}
}
