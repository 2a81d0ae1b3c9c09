package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/alphafuse/internal/config"
	"github.com/ajitpratap0/alphafuse/internal/db"
	"github.com/ajitpratap0/alphafuse/internal/metrics"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// StrategySpec is one resolved strategy: how to build it, which grid to
// search and how to name its result
type StrategySpec struct {
	Name    string
	Class   string
	Factory backtest.StrategyFactory
	Grid    backtest.ParamGrid
}

// StrategyIssue names a strategy left out of the ensemble and why
type StrategyIssue struct {
	Name   string `json:"name"`
	Class  string `json:"class"`
	Reason string `json:"reason"`
}

// RunReport is everything one symbol run produced
type RunReport struct {
	RunID     uuid.UUID                                `json:"run_id"`
	Symbol    string                                   `json:"symbol"`
	Start     time.Time                                `json:"start"`
	End       time.Time                                `json:"end"`
	Candles   int                                      `json:"candles"`
	Results   []ensemble.StrategyResult                `json:"results"`
	Summaries map[string]*backtest.OptimizationSummary `json:"-"`
	Skipped   []StrategyIssue                          `json:"skipped,omitempty"` // never evaluated
	Failed    []StrategyIssue                          `json:"failed,omitempty"`  // evaluated without a result
	Decision  *ensemble.Decision                       `json:"decision,omitempty"`
	Status    db.RunStatus                             `json:"status"`
	Published bool                                     `json:"published"`
	Warnings  []string                                 `json:"warnings,omitempty"`
	Duration  time.Duration                            `json:"duration"`
}

// Partial reports whether some strategies were lost along the way
func (r *RunReport) Partial() bool {
	return len(r.Skipped) > 0 || len(r.Failed) > 0
}

// Worker backtests a fixed list of strategies
type Worker struct {
	services Services
	config   Config
	specs    []StrategySpec
}

// NewWorker creates a worker for specs
func NewWorker(services Services, cfg Config, specs ...StrategySpec) (*Worker, error) {
	if err := services.validate(false); err != nil {
		return nil, err
	}
	specs = append([]StrategySpec(nil), specs...)
	for i, spec := range specs {
		if spec.Factory == nil {
			return nil, fmt.Errorf("strategy %d (%s) has no factory", i, spec.Class)
		}
		if specs[i].Name == "" {
			specs[i].Name = spec.Class
		}
	}
	return &Worker{services: services, config: cfg, specs: specs}, nil
}

// Backtest runs every strategy of the worker over [start, end] for symbol
func (w *Worker) Backtest(ctx context.Context, symbol string, start, end time.Time) (*RunReport, error) {
	return run(ctx, w.services, w.config, symbol, start, end, func(context.Context) ([]StrategySpec, []StrategyIssue, error) {
		return w.specs, nil, nil
	})
}

// resolver produces the strategies of one run
type resolver func(ctx context.Context) ([]StrategySpec, []StrategyIssue, error)

// run is the pipeline shared by Worker and DynamicWorker. A non-nil report is
// returned whenever any result was produced, even alongside an error.
func run(ctx context.Context, svc Services, cfg Config, symbol string, start, end time.Time, resolve resolver) (*RunReport, error) {
	began := time.Now()
	report := &RunReport{
		RunID:     uuid.New(),
		Symbol:    symbol,
		Start:     start,
		End:       end,
		Summaries: make(map[string]*backtest.OptimizationSummary),
	}
	logger := config.NewSymbolLogger(symbol, report.RunID.String())

	record := &db.Run{ID: report.RunID, Symbol: symbol, StartDate: start, EndDate: end}
	recording := startRecord(ctx, svc, cfg, record, logger)

	fail := func(stage, reason string, err error) (*RunReport, error) {
		runErr := &RunError{Symbol: symbol, Stage: stage, Reason: reason, Err: err}
		report.Status = db.RunStatusFailed
		report.Duration = time.Since(began)
		logger.Error().Err(err).Str("stage", stage).Msg(reason)
		metrics.RecordRun(string(report.Status), stage, report.Duration.Seconds())
		if svc.Alerts != nil {
			_ = svc.Alerts.RunFailed(context.WithoutCancel(ctx), symbol, stage, runErr.Error())
		}
		if recording {
			record.ErrorStage = stage
			record.ErrorMessage = runErr.Error()
			finishRecord(ctx, svc, cfg, record, report, logger)
		}
		if len(report.Results) > 0 {
			return report, runErr
		}
		return nil, runErr
	}

	specs, skipped, err := resolve(ctx)
	report.Skipped = skipped
	if err != nil {
		return fail(StagePool, "failed to load strategy pool", err)
	}
	if len(specs) == 0 {
		return fail(StagePool, "no runnable strategies", nil)
	}

	candles, err := svc.Candles.Load(ctx, symbol, start, end)
	if err != nil {
		return fail(StageLoad, "failed to load candles", err)
	}
	if len(candles) < 2 {
		return fail(StageLoad, "not enough candles", fmt.Errorf("%w: got %d", backtest.ErrInsufficientData, len(candles)))
	}
	report.Candles = len(candles)

	macro := loadMacro(ctx, svc, cfg, symbol, start, end, logger)

	for _, spec := range specs {
		res, summary, err := optimize(ctx, cfg, spec, candles, logger)
		if summary != nil {
			report.Summaries[spec.Name] = summary
		}
		if err != nil {
			if ctx.Err() != nil {
				return fail(StageOptimize, "run cancelled", ctx.Err())
			}
			report.Failed = append(report.Failed, StrategyIssue{Name: spec.Name, Class: spec.Class, Reason: err.Error()})
			continue
		}
		report.Results = append(report.Results, *res)
	}

	if len(report.Results) == 0 {
		return fail(StageOptimize, "every strategy failed", nil)
	}

	current := currentPosition(ctx, svc, cfg, symbol, logger)
	decision := svc.Engine.Decide(report.Results, candles, macro, current)
	decision.Symbol = symbol
	report.Decision = decision

	if err := withTimeout(ctx, cfg, func(ctx context.Context) error {
		return svc.Store.SaveStrategyResults(ctx, report.RunID, symbol, report.Results)
	}); err != nil {
		return fail(StagePersist, "failed to save strategy results", err)
	}
	if err := withTimeout(ctx, cfg, func(ctx context.Context) error {
		return svc.Store.SaveDecision(ctx, report.RunID, decision)
	}); err != nil {
		return fail(StagePersist, "failed to save decision", err)
	}

	if svc.Publisher != nil {
		err := svc.Publisher.PublishDecision(ctx, report.RunID.String(), decision)
		metrics.RecordPublish(err)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to publish decision")
			report.Warnings = append(report.Warnings, "decision not published: "+err.Error())
		} else {
			report.Published = true
		}
	}

	report.Status = db.RunStatusCompleted
	if report.Partial() {
		report.Status = db.RunStatusPartial
		if svc.Alerts != nil {
			lost := len(report.Skipped) + len(report.Failed)
			_ = svc.Alerts.RunDegraded(ctx, symbol, lost, lost+len(report.Results))
		}
	}
	report.Duration = time.Since(began)

	metrics.RecordRun(string(report.Status), "", report.Duration.Seconds())
	metrics.RecordDecision(symbol, string(decision.ExecutionStatus), decision.SuggestedPosition, decision.SignalScore)
	if recording {
		finishRecord(ctx, svc, cfg, record, report, logger)
	}

	logger.Info().
		Str("status", string(report.Status)).
		Int("strategies", len(report.Results)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Str("signal", string(decision.Signal)).
		Float64("suggested_position", decision.SuggestedPosition).
		Dur("duration", report.Duration).
		Msg("Run complete")

	return report, nil
}

// optimize grid-searches one strategy and converts the winner into a result
func optimize(ctx context.Context, cfg Config, spec StrategySpec, candles []backtest.Candle, logger zerolog.Logger) (*ensemble.StrategyResult, *backtest.OptimizationSummary, error) {
	opt, err := backtest.NewGridSearchOptimizer(spec.Factory, spec.Grid, cfg.TargetMetric, cfg.Simulator)
	if err != nil {
		return nil, nil, err
	}
	opt.SetParallelism(cfg.Parallelism)

	summary, err := opt.Optimize(ctx, candles)
	if summary != nil {
		metrics.RecordGridEvaluations(spec.Class, summary.TotalRuns, summary.FailedRuns, summary.Duration.Seconds())
	}
	if err != nil {
		if errors.Is(err, backtest.ErrNoViableCombination) {
			metrics.RecordSkippedStrategy(err.Error())
		}
		logger.Error().
			Err(err).
			Str("strategy", spec.Name).
			Str("class", spec.Class).
			Msg("Strategy optimization failed")
		return nil, summary, err
	}

	best := summary.BestResult
	logger.Info().
		Str("strategy", spec.Name).
		Str("params", best.Parameters.String()).
		Float64("score", best.Score).
		Msg("Strategy optimized")

	return &ensemble.StrategyResult{
		Name:    spec.Name,
		Class:   spec.Class,
		Params:  best.Parameters,
		Metrics: best.Metrics,
		Curve:   best.Curve,
	}, summary, nil
}

func loadMacro(ctx context.Context, svc Services, cfg Config, symbol string, start, end time.Time, logger zerolog.Logger) []backtest.Candle {
	if cfg.MacroSymbol == "" || cfg.MacroSymbol == symbol {
		return nil
	}
	macro, err := svc.Candles.Load(ctx, cfg.MacroSymbol, start, end)
	if err != nil {
		logger.Warn().Err(err).Str("macro_symbol", cfg.MacroSymbol).Msg("Macro candles unavailable, regime overlay disabled")
		return nil
	}
	return macro
}

func currentPosition(ctx context.Context, svc Services, cfg Config, symbol string, logger zerolog.Logger) float64 {
	var current float64
	err := withTimeout(ctx, cfg, func(ctx context.Context) error {
		var err error
		current, err = svc.Store.CurrentPosition(ctx, symbol)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Current position unavailable, assuming flat")
		return 0
	}
	return current
}

func startRecord(ctx context.Context, svc Services, cfg Config, record *db.Run, logger zerolog.Logger) bool {
	if svc.Runs == nil {
		return false
	}
	err := withTimeout(ctx, cfg, func(ctx context.Context) error {
		return svc.Runs.StartRun(ctx, record)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record run start")
		return false
	}
	return true
}

func finishRecord(ctx context.Context, svc Services, cfg Config, record *db.Run, report *RunReport, logger zerolog.Logger) {
	record.Status = report.Status
	record.StrategyCount = len(report.Results)
	record.FailedCount = len(report.Failed) + len(report.Skipped)

	// a cancelled run still gets its audit row closed
	err := withTimeout(context.WithoutCancel(ctx), cfg, func(ctx context.Context) error {
		return svc.Runs.FinishRun(ctx, record)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to record run finish")
	}
}

func withTimeout(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.StoreTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	return fn(ctx)
}
