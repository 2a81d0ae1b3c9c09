package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/alphafuse/internal/metrics"
	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/pkg/strategy"
)

// DynamicWorker backtests whatever the pool source lists at run time,
// resolving each entry's class through the strategy registry
type DynamicWorker struct {
	services Services
	config   Config
	limiter  *rate.Limiter
}

// NewDynamicWorker creates a pool-driven worker. A nil registry falls back to
// the built-in strategies.
func NewDynamicWorker(services Services, cfg Config) (*DynamicWorker, error) {
	if err := services.validate(true); err != nil {
		return nil, err
	}
	if services.Registry == nil {
		services.Registry = strategy.DefaultRegistry()
	}

	limit := rate.Inf
	if cfg.SymbolsPerSecond > 0 {
		limit = rate.Limit(cfg.SymbolsPerSecond)
	}

	return &DynamicWorker{
		services: services,
		config:   cfg,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// RegisterStrategies resolves pool entries into runnable strategies. Entries
// with an unknown class or an unparsable param payload are logged and
// returned as issues; they never fail the batch.
func (w *DynamicWorker) RegisterStrategies(entries []pool.Entry) ([]StrategySpec, []StrategyIssue) {
	specs := make([]StrategySpec, 0, len(entries))
	var issues []StrategyIssue

	skip := func(e pool.Entry, reason string, err error) {
		log.Error().
			Err(err).
			Int64("pool_id", e.ID).
			Str("strategy", e.DisplayName()).
			Str("class", e.Class).
			Msg(reason)
		metrics.RecordSkippedStrategy(reason)
		issues = append(issues, StrategyIssue{Name: e.DisplayName(), Class: e.Class, Reason: fmt.Sprintf("%s: %v", reason, err)})
	}

	for _, e := range entries {
		def, ok := w.services.Registry.Lookup(e.Class)
		if !ok {
			skip(e, "unknown strategy class", fmt.Errorf("%q is not registered", e.Class))
			continue
		}

		grid, err := pool.ParseParamGrid(e.ParamConfigs)
		if err != nil {
			skip(e, "invalid param payload", err)
			continue
		}
		if len(grid) == 0 {
			grid = def.DefaultGrid
		}

		specs = append(specs, StrategySpec{
			Name:    e.DisplayName(),
			Class:   e.Class,
			Factory: def.Build,
			Grid:    grid,
		})
	}

	return specs, issues
}

// Backtest loads the active pool and runs it over [start, end] for symbol
func (w *DynamicWorker) Backtest(ctx context.Context, symbol string, start, end time.Time) (*RunReport, error) {
	return run(ctx, w.services, w.config, symbol, start, end, func(ctx context.Context) ([]StrategySpec, []StrategyIssue, error) {
		entries, err := w.services.Pool.ActivePool(ctx)
		if err != nil {
			return nil, nil, err
		}
		specs, issues := w.RegisterStrategies(entries)
		return specs, issues, nil
	})
}

// RunSymbols backtests symbols one after another, paced by the rate limiter.
// It returns every report produced and the joined errors of failed symbols.
func (w *DynamicWorker) RunSymbols(ctx context.Context, symbols []string, start, end time.Time) ([]*RunReport, error) {
	reports := make([]*RunReport, 0, len(symbols))
	var errs []error

	for _, symbol := range symbols {
		if err := w.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("batch stopped before %s: %w", symbol, err))
			break
		}

		report, err := w.Backtest(ctx, symbol, start, end)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	log.Info().
		Int("symbols", len(symbols)).
		Int("reports", len(reports)).
		Int("errors", len(errs)).
		Msg("Batch run complete")

	return reports, errors.Join(errs...)
}
