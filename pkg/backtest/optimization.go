// Parameter optimization for backtesting strategies
package backtest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ============================================================================
// PARAMETER DEFINITION
// ============================================================================

// ParameterSet represents one set of parameter values
type ParameterSet map[string]interface{}

// Clone creates a copy of the parameter set
func (ps ParameterSet) Clone() ParameterSet {
	clone := make(ParameterSet, len(ps))
	for k, v := range ps {
		clone[k] = v
	}
	return clone
}

// String renders the set with keys in sorted order
func (ps ParameterSet) String() string {
	if len(ps) == 0 {
		return "{}"
	}
	keys := sortedKeys(ps)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, ps[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Int reads an integer parameter, accepting any JSON/YAML numeric representation
func (ps ParameterSet) Int(name string, defaultValue int) (int, error) {
	raw, ok := ps[name]
	if !ok || raw == nil {
		return defaultValue, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("parameter %s: %v is not an integer", name, v)
		}
		return int(v), nil
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, fmt.Errorf("parameter %s: %v is not an integer", name, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %s: unsupported type %T", name, raw)
	}
}

// Float reads a float parameter
func (ps ParameterSet) Float(name string, defaultValue float64) (float64, error) {
	raw, ok := ps[name]
	if !ok || raw == nil {
		return defaultValue, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("parameter %s: unsupported type %T", name, raw)
	}
}

// ParamGrid maps each parameter name to the candidate values to try
type ParamGrid map[string][]interface{}

// Size returns the number of combinations the grid expands to
func (g ParamGrid) Size() int {
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// ExpandGrid returns the Cartesian product of the grid. Keys are walked in
// sorted order so enumeration is deterministic. An empty grid yields a single
// empty set, meaning "use the strategy defaults".
func ExpandGrid(grid ParamGrid) []ParameterSet {
	if len(grid) == 0 {
		return []ParameterSet{{}}
	}
	keys := sortedKeys(grid)
	return expandRecursive(grid, keys, 0, ParameterSet{})
}

func expandRecursive(grid ParamGrid, keys []string, idx int, current ParameterSet) []ParameterSet {
	if idx >= len(keys) {
		return []ParameterSet{current.Clone()}
	}

	var combinations []ParameterSet
	for _, v := range grid[keys[idx]] {
		next := current.Clone()
		next[keys[idx]] = v
		combinations = append(combinations, expandRecursive(grid, keys, idx+1, next)...)
	}
	return combinations
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// OPTIMIZATION RESULT
// ============================================================================

// OptimizationResult is the outcome of evaluating one parameter combination
type OptimizationResult struct {
	Index      int                `json:"index"` // enumeration order
	Parameters ParameterSet       `json:"parameters"`
	Metrics    PerformanceMetrics `json:"metrics"`
	Curve      EquityCurve        `json:"-"`
	Score      float64            `json:"score"`
	Failed     bool               `json:"failed"`
	Error      string             `json:"error,omitempty"`
}

// OptimizationSummary summarizes an optimization run
type OptimizationSummary struct {
	Method          string                `json:"method"`
	TotalRuns       int                   `json:"total_runs"`
	FailedRuns      int                   `json:"failed_runs"`
	Duration        time.Duration         `json:"duration"`
	ObjectiveMetric string                `json:"objective_metric"`
	BestResult      *OptimizationResult   `json:"best_result"`
	Results         []*OptimizationResult `json:"results"` // enumeration order
}

// String renders a one-line description of the summary
func (s *OptimizationSummary) String() string {
	if s.BestResult == nil {
		return fmt.Sprintf("%s: %d runs, %d failed, no result (%s)", s.Method, s.TotalRuns, s.FailedRuns, formatDuration(s.Duration))
	}
	return fmt.Sprintf("%s: %d runs, %d failed, best %s=%.4f with %s (%s)",
		s.Method, s.TotalRuns, s.FailedRuns, s.ObjectiveMetric, s.BestResult.Score,
		s.BestResult.Parameters.String(), formatDuration(s.Duration))
}

// ============================================================================
// OBJECTIVE FUNCTIONS
// ============================================================================

// ObjectiveFunction calculates a fitness score from backtest metrics
type ObjectiveFunction func(PerformanceMetrics) float64

// DefaultObjective is the metric maximised when none is configured
const DefaultObjective = "total_return"

var objectives = map[string]ObjectiveFunction{
	"total_return":      func(m PerformanceMetrics) float64 { return m.TotalReturn },
	"annual_return":     func(m PerformanceMetrics) float64 { return m.AnnualReturn },
	"sharpe_ratio":      func(m PerformanceMetrics) float64 { return m.SharpeRatio },
	"calmar_ratio":      func(m PerformanceMetrics) float64 { return m.CalmarRatio },
	"win_rate":          func(m PerformanceMetrics) float64 { return m.WinRate },
	"trade_win_rate":    func(m PerformanceMetrics) float64 { return m.TradeWinRate },
	"profit_loss_ratio": func(m PerformanceMetrics) float64 { return m.ProfitLossRatio },
	"max_drawdown":      func(m PerformanceMetrics) float64 { return -m.MaxDrawdown },
}

// ObjectiveByName resolves a target metric name to its objective function
func ObjectiveByName(name string) (ObjectiveFunction, error) {
	if name == "" {
		name = DefaultObjective
	}
	fn, ok := objectives[name]
	if !ok {
		return nil, fmt.Errorf("unknown target metric %q (supported: %s)", name, strings.Join(ObjectiveNames(), ", "))
	}
	return fn, nil
}

// ObjectiveNames lists the supported target metrics
func ObjectiveNames() []string {
	return sortedKeys(objectives)
}

// ============================================================================
// STRATEGY FACTORY
// ============================================================================

// StrategyFactory creates a strategy with given parameters
type StrategyFactory func(params ParameterSet) (Strategy, error)

// ============================================================================
// GRID SEARCH OPTIMIZER
// ============================================================================

// GridSearchOptimizer performs exhaustive grid search over a parameter grid
type GridSearchOptimizer struct {
	factory       StrategyFactory
	grid          ParamGrid
	objective     ObjectiveFunction
	objectiveName string
	simulator     *Simulator
	parallel      int
}

// NewGridSearchOptimizer creates a new grid search optimizer. target names the
// metric to maximise; empty selects DefaultObjective.
func NewGridSearchOptimizer(factory StrategyFactory, grid ParamGrid, target string, config SimulatorConfig) (*GridSearchOptimizer, error) {
	if factory == nil {
		return nil, fmt.Errorf("strategy factory is required")
	}
	objective, err := ObjectiveByName(target)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target = DefaultObjective
	}
	return &GridSearchOptimizer{
		factory:       factory,
		grid:          grid,
		objective:     objective,
		objectiveName: target,
		simulator:     NewSimulator(config),
		parallel:      -1,
	}, nil
}

// SetParallelism sets the number of parallel workers; n <= 0 uses all CPUs
func (opt *GridSearchOptimizer) SetParallelism(n int) {
	opt.parallel = n
}

func (opt *GridSearchOptimizer) workers() int {
	if opt.parallel <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return opt.parallel
}

// Optimize evaluates every combination and selects the one with the highest
// objective. Failed combinations score -Inf and never win; ties go to the
// combination enumerated first. Cancelling ctx discards all partial results.
func (opt *GridSearchOptimizer) Optimize(ctx context.Context, candles []Candle) (*OptimizationSummary, error) {
	startTime := time.Now()
	combinations := ExpandGrid(opt.grid)
	totalRuns := len(combinations)

	log.Info().
		Int("combinations", totalRuns).
		Int("parallel", opt.workers()).
		Str("objective", opt.objectiveName).
		Msg("Starting grid search optimization")

	results := make([]*OptimizationResult, totalRuns)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.workers())

	for i, params := range combinations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// each task works on its own copy of the candles
			local := make([]Candle, len(candles))
			copy(local, candles)
			results[i] = opt.evaluate(i, params, local)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("grid search cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("grid search cancelled: %w", err)
	}

	summary := &OptimizationSummary{
		Method:          "grid_search",
		TotalRuns:       totalRuns,
		ObjectiveMetric: opt.objectiveName,
		Results:         results,
	}

	for _, result := range results {
		if result.Failed {
			summary.FailedRuns++
			continue
		}
		if summary.BestResult == nil || result.Score > summary.BestResult.Score {
			summary.BestResult = result
		}
	}

	// only the winner keeps its curve
	for _, result := range results {
		if result != summary.BestResult {
			result.Curve = nil
		}
	}

	summary.Duration = time.Since(startTime)

	if summary.BestResult == nil {
		return summary, fmt.Errorf("%w: %d of %d combinations failed", ErrNoViableCombination, summary.FailedRuns, totalRuns)
	}

	log.Info().
		Int("total_runs", totalRuns).
		Int("failed_runs", summary.FailedRuns).
		Float64("best_score", summary.BestResult.Score).
		Str("best_params", summary.BestResult.Parameters.String()).
		Dur("duration", summary.Duration).
		Msg("Grid search optimization complete")

	return summary, nil
}

// evaluate runs a single combination; errors and panics are contained
func (opt *GridSearchOptimizer) evaluate(idx int, params ParameterSet, candles []Candle) (result *OptimizationResult) {
	result = &OptimizationResult{Index: idx, Parameters: params}

	defer func() {
		if r := recover(); r != nil {
			result.markFailed(fmt.Errorf("panic: %v", r), params)
		}
	}()

	strategy, err := opt.factory(params.Clone())
	if err != nil {
		result.markFailed(fmt.Errorf("create strategy: %w", err), params)
		return result
	}

	signals, err := strategy.GenerateSignals(candles)
	if err != nil {
		result.markFailed(fmt.Errorf("generate signals: %w", err), params)
		return result
	}

	curve, err := opt.simulator.Run(candles, signals)
	if err != nil {
		result.markFailed(fmt.Errorf("simulate: %w", err), params)
		return result
	}

	result.Curve = curve
	result.Metrics = Performance(curve)
	result.Score = opt.objective(result.Metrics)
	if math.IsNaN(result.Score) {
		result.Score = math.Inf(-1)
	}
	return result
}

func (r *OptimizationResult) markFailed(err error, params ParameterSet) {
	r.Failed = true
	r.Error = err.Error()
	r.Score = math.Inf(-1)
	r.Curve = nil
	log.Warn().
		Err(err).
		Int("combination", r.Index).
		Str("params", params.String()).
		Msg("Parameter combination failed")
}
