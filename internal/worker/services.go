// Package worker runs the per-symbol pipeline: resolve the strategy pool,
// optimize every strategy over the candle window, fuse the winners into one
// ensemble decision, then persist and publish the outcome.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/alphafuse/internal/alerts"
	"github.com/ajitpratap0/alphafuse/internal/db"
	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
	"github.com/ajitpratap0/alphafuse/pkg/strategy"
)

// CandleSource loads the candle window of a symbol in ascending date order
type CandleSource interface {
	Load(ctx context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error)
}

// PoolSource lists the active strategy pool
type PoolSource interface {
	ActivePool(ctx context.Context) ([]pool.Entry, error)
}

// ResultStore persists strategy results and decisions. Implementations key
// results by (symbol, class) and decisions by symbol.
type ResultStore interface {
	SaveStrategyResults(ctx context.Context, runID uuid.UUID, symbol string, results []ensemble.StrategyResult) error
	SaveDecision(ctx context.Context, runID uuid.UUID, d *ensemble.Decision) error
	CurrentPosition(ctx context.Context, symbol string) (float64, error)
}

// RunRecorder keeps an audit row per run
type RunRecorder interface {
	StartRun(ctx context.Context, run *db.Run) error
	FinishRun(ctx context.Context, run *db.Run) error
}

// DecisionPublisher fans a stored decision out to consumers
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, runID string, d *ensemble.Decision) error
}

// Services are the collaborators of one worker. Candles, Store and Engine are
// required; the rest are optional.
type Services struct {
	Candles   CandleSource
	Pool      PoolSource
	Store     ResultStore
	Runs      RunRecorder
	Publisher DecisionPublisher
	Alerts    *alerts.Manager
	Registry  *strategy.Registry
	Engine    *ensemble.Engine
}

func (s Services) validate(needPool bool) error {
	if s.Candles == nil {
		return fmt.Errorf("candle source is required")
	}
	if s.Store == nil {
		return fmt.Errorf("result store is required")
	}
	if s.Engine == nil {
		return fmt.Errorf("ensemble engine is required")
	}
	if needPool && s.Pool == nil {
		return fmt.Errorf("pool source is required")
	}
	return nil
}

// Config tunes the pipeline
type Config struct {
	Simulator        backtest.SimulatorConfig
	TargetMetric     string
	Parallelism      int    // grid workers per strategy, <= 0 uses every CPU
	MacroSymbol      string // optional regime input
	StoreTimeout     time.Duration
	SymbolsPerSecond float64 // RunSymbols pacing, <= 0 is unlimited
}

// DefaultConfig returns the worker defaults
func DefaultConfig() Config {
	return Config{
		Simulator:        backtest.DefaultSimulatorConfig(),
		TargetMetric:     backtest.DefaultObjective,
		Parallelism:      -1,
		StoreTimeout:     10 * time.Second,
		SymbolsPerSecond: 1,
	}
}
