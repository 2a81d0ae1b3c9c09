package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// ResultRepository stores per-strategy results and ensemble decisions
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveStrategyResults upserts one row per (symbol, strategy class). Rows are
// ranked by annual return, best first. Metrics and curves are sanitized
// before encoding so no NaN or Inf reaches the JSON columns.
func (r *ResultRepository) SaveStrategyResults(ctx context.Context, runID uuid.UUID, symbol string, results []ensemble.StrategyResult) error {
	if err := r.db.available(); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	ordered := append([]ensemble.StrategyResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Metrics.Sanitize().AnnualReturn > ordered[j].Metrics.Sanitize().AnnualReturn
	})

	query := `
		INSERT INTO strategy_signal (symbol, strategy_name, strategy_class, param_config, perf, equity_curve, rank, run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (symbol, strategy_class) DO UPDATE SET
			strategy_name = EXCLUDED.strategy_name,
			param_config = EXCLUDED.param_config,
			perf = EXCLUDED.perf,
			equity_curve = EXCLUDED.equity_curve,
			rank = EXCLUDED.rank,
			run_id = EXCLUDED.run_id,
			updated_at = NOW()
	`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		for rank, res := range ordered {
			params, err := json.Marshal(res.Params)
			if err != nil {
				return fmt.Errorf("failed to marshal params for %s: %w", res.Class, err)
			}
			perf, err := json.Marshal(res.Metrics.Sanitize())
			if err != nil {
				return fmt.Errorf("failed to marshal metrics for %s: %w", res.Class, err)
			}
			curve, err := json.Marshal(res.Curve.Sanitize())
			if err != nil {
				return fmt.Errorf("failed to marshal equity curve for %s: %w", res.Class, err)
			}

			if _, err := tx.Exec(ctx, query, symbol, res.Name, res.Class, params, perf, curve, rank, runID); err != nil {
				return fmt.Errorf("failed to save result for %s/%s: %w", symbol, res.Class, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("symbol", symbol).
		Int("strategies", len(ordered)).
		Msg("Strategy results saved")

	return nil
}

// SaveDecision upserts the latest decision of its symbol
func (r *ResultRepository) SaveDecision(ctx context.Context, runID uuid.UUID, d *ensemble.Decision) error {
	if err := r.db.available(); err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("decision cannot be nil")
	}
	if d.Symbol == "" {
		return fmt.Errorf("decision has no symbol")
	}

	d.Sanitize()
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	decisionID, err := uuid.Parse(d.ID)
	if err != nil {
		return fmt.Errorf("invalid decision id %q: %w", d.ID, err)
	}

	query := `
		INSERT INTO ensemble_decision (symbol, decision_id, signal, signal_score, confidence_score,
			suggested_position, execution_status, as_of, payload, run_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			decision_id = EXCLUDED.decision_id,
			signal = EXCLUDED.signal,
			signal_score = EXCLUDED.signal_score,
			confidence_score = EXCLUDED.confidence_score,
			suggested_position = EXCLUDED.suggested_position,
			execution_status = EXCLUDED.execution_status,
			as_of = EXCLUDED.as_of,
			payload = EXCLUDED.payload,
			run_id = EXCLUDED.run_id,
			updated_at = NOW()
	`

	_, err = r.db.pool.Exec(ctx, query,
		d.Symbol,
		decisionID,
		string(d.Signal),
		d.SignalScore,
		d.ConfidenceScore,
		d.SuggestedPosition,
		string(d.ExecutionStatus),
		d.Timestamp,
		payload,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision for %s: %w", d.Symbol, err)
	}

	log.Debug().
		Str("symbol", d.Symbol).
		Str("signal", string(d.Signal)).
		Float64("suggested_position", d.SuggestedPosition).
		Msg("Decision saved")

	return nil
}

// CurrentPosition returns the last suggested position of symbol, or 0 when
// no decision has been stored yet
func (r *ResultRepository) CurrentPosition(ctx context.Context, symbol string) (float64, error) {
	if err := r.db.available(); err != nil {
		return 0, err
	}

	var position float64
	err := r.db.pool.QueryRow(ctx,
		`SELECT suggested_position FROM ensemble_decision WHERE symbol = $1`, symbol,
	).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current position for %s: %w", symbol, err)
	}

	return position, nil
}

// LatestDecision returns the stored decision of symbol, or nil when none
func (r *ResultRepository) LatestDecision(ctx context.Context, symbol string) (*ensemble.Decision, error) {
	if err := r.db.available(); err != nil {
		return nil, err
	}

	var payload []byte
	err := r.db.pool.QueryRow(ctx,
		`SELECT payload FROM ensemble_decision WHERE symbol = $1`, symbol,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get decision for %s: %w", symbol, err)
	}

	var d ensemble.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return &d, nil
}
