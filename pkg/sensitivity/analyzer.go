// Package sensitivity sweeps exit valuations through the waterfall engine to
// produce per-class proceeds curves.
package sensitivity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"

	"github.com/iwvelando/equity-waterfall/pkg/captable"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/mathutil"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// exitValuationKey is the fixed key of a point's valuation in its JSON form.
const exitValuationKey = "exitValuation"

// Options controls a sweep. Zero values select the defaults: 20 steps, a
// maximum exit of ten times the last post-money, and one worker per CPU.
type Options struct {
	Steps   int     `json:"steps" yaml:"steps"`
	MaxExit float64 `json:"maxExit" yaml:"maxExit"`
	Workers int     `json:"workers" yaml:"workers"`
}

// Point is the waterfall outcome at one exit valuation. Proceeds is keyed by
// share class name, plus constants.FundSeriesKey for the fund.
type Point struct {
	ExitValuation float64
	Proceeds      map[string]float64
}

// MarshalJSON renders the point as a flat map:
// {"exitValuation": ..., "<class>": ..., "Our Fund": ...}.
func (p Point) MarshalJSON() ([]byte, error) {
	flat := make(map[string]float64, len(p.Proceeds)+1)
	for k, v := range p.Proceeds {
		flat[k] = v
	}
	flat[exitValuationKey] = p.ExitValuation
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat map form written by MarshalJSON.
func (p *Point) UnmarshalJSON(data []byte) error {
	var flat map[string]float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	p.ExitValuation = flat[exitValuationKey]
	delete(flat, exitValuationKey)
	p.Proceeds = flat
	return nil
}

// Analyzer runs sensitivity sweeps.
type Analyzer struct {
	logger *zap.Logger
	engine *waterfall.Engine
}

// NewAnalyzer creates an analyzer evaluating each point with engine.
func NewAnalyzer(logger *zap.Logger, engine *waterfall.Engine) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger, engine: engine}
}

// ComputeSensitivity evaluates the waterfall at Steps+1 evenly spaced exit
// valuations from 0 to MaxExit inclusive. Points are evaluated concurrently
// and returned in ascending valuation order.
func (a *Analyzer) ComputeSensitivity(ctx context.Context, ct captable.CapTable, opts Options) ([]Point, error) {
	if err := ct.Validate(); err != nil {
		return nil, err
	}
	steps, maxExit, workers, err := resolveOptions(ct, opts)
	if err != nil {
		return nil, err
	}

	stepSize := maxExit / float64(steps)
	points := make([]Point, steps+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i <= steps; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exit := mathutil.RoundWhole(stepSize * float64(i))
			result, err := a.engine.ComputeWaterfall(ct, exit)
			if err != nil {
				return fmt.Errorf("exit valuation %v: %w", exit, err)
			}
			points[i] = toPoint(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("computed sensitivity",
		zap.String("op", "sensitivity.ComputeSensitivity"),
		zap.String("company", ct.CompanyID),
		zap.Int("steps", steps),
		zap.Float64("maxExit", maxExit),
		zap.Int("workers", workers),
	)
	return points, nil
}

func toPoint(result *waterfall.Result) Point {
	p := Point{
		ExitValuation: result.ExitValuation,
		Proceeds:      make(map[string]float64, len(result.Rows)+1),
	}
	for _, row := range result.Rows {
		p.Proceeds[row.ShareClass] = row.TotalProceeds
	}
	p.Proceeds[constants.FundSeriesKey] = result.FundProceeds
	return p
}

func resolveOptions(ct captable.CapTable, opts Options) (steps int, maxExit float64, workers int, err error) {
	steps = opts.Steps
	if steps <= 0 {
		steps = constants.DefaultSensitivitySteps
	}
	if steps > constants.MaxSensitivitySteps {
		return 0, 0, 0, captable.Invalid("steps", "at most %d steps are supported, got %d", constants.MaxSensitivitySteps, steps)
	}

	maxExit = opts.MaxExit
	if math.IsInf(maxExit, 0) {
		return 0, 0, 0, captable.Invalid("maxExit", "must be finite")
	}
	if !(maxExit > 0) {
		maxExit = DefaultMaxExit(ct)
	}

	workers = opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return steps, maxExit, workers, nil
}

// DefaultMaxExit is ten times the post-money of the last round, or ten times
// a reference valuation when the company has no rounds.
func DefaultMaxExit(ct captable.CapTable) float64 {
	postMoney := constants.DefaultPostMoney
	if r, ok := ct.LastRound(); ok {
		postMoney = r.PostMoney
	}
	return postMoney * constants.SensitivityExitMultiple
}
