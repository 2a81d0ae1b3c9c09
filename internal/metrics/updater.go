package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// RecentRuns is refreshed by the Updater from backtest_runs
var RecentRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "alphafuse_recent_runs",
	Help: "Runs started in the last 24 hours, by status",
}, []string{"status"})

// Querier is the subset of pgx used by the Updater
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Updater periodically refreshes gauges from the database so they survive a
// process restart
type Updater struct {
	db       Querier
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewUpdater creates a new metrics updater
func NewUpdater(db Querier, interval time.Duration) *Updater {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater
func (u *Updater) Stop() {
	u.stopOnce.Do(func() { close(u.stopCh) })
}

func (u *Updater) update(ctx context.Context) {
	if err := u.updateDecisionMetrics(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to update decision metrics")
	}
	if err := u.updateRunMetrics(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to update run metrics")
	}
}

func (u *Updater) updateDecisionMetrics(ctx context.Context) error {
	rows, err := u.db.Query(ctx, `SELECT symbol, suggested_position, signal_score FROM ensemble_decision`)
	if err != nil {
		return fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var position, score float64
		if err := rows.Scan(&symbol, &position, &score); err != nil {
			return fmt.Errorf("failed to scan decision: %w", err)
		}
		SuggestedPosition.WithLabelValues(symbol).Set(position)
		SignalScore.WithLabelValues(symbol).Set(score)
	}
	return rows.Err()
}

func (u *Updater) updateRunMetrics(ctx context.Context) error {
	rows, err := u.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM backtest_runs
		WHERE started_at > NOW() - INTERVAL '24 hours'
		GROUP BY status
	`)
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	RecentRuns.Reset()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return fmt.Errorf("failed to scan run count: %w", err)
		}
		RecentRuns.WithLabelValues(status).Set(float64(count))
	}
	return rows.Err()
}
