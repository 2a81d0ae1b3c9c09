package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunStatus represents the status of one symbol run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the audit record of one worker run for one symbol
type Run struct {
	ID            uuid.UUID  `json:"id"`
	Symbol        string     `json:"symbol"`
	Status        RunStatus  `json:"status"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	StrategyCount int        `json:"strategy_count"`
	FailedCount   int        `json:"failed_count"`
	ErrorStage    string     `json:"error_stage,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RunRepository records worker runs in backtest_runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts a running record, generating the ID when unset
func (r *RunRepository) StartRun(ctx context.Context, run *Run) error {
	if err := r.db.available(); err != nil {
		return err
	}
	if run.Symbol == "" {
		return fmt.Errorf("run symbol is required")
	}
	if !run.EndDate.After(run.StartDate) {
		return fmt.Errorf("end_date must be after start_date")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = RunStatusRunning
	run.StartedAt = time.Now()

	query := `
		INSERT INTO backtest_runs (id, symbol, status, start_date, end_date, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.pool.Exec(ctx, query,
		run.ID, run.Symbol, string(run.Status), run.StartDate, run.EndDate, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest run: %w", err)
	}

	log.Debug().
		Str("run_id", run.ID.String()).
		Str("symbol", run.Symbol).
		Msg("Backtest run started")

	return nil
}

// FinishRun stores the final status, counts and error of a run
func (r *RunRepository) FinishRun(ctx context.Context, run *Run) error {
	if err := r.db.available(); err != nil {
		return err
	}

	now := time.Now()
	run.CompletedAt = &now

	query := `
		UPDATE backtest_runs
		SET status = $2, strategy_count = $3, failed_count = $4,
		    error_stage = NULLIF($5, ''), error_message = NULLIF($6, ''), completed_at = $7
		WHERE id = $1
	`

	tag, err := r.db.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.StrategyCount, run.FailedCount,
		run.ErrorStage, run.ErrorMessage, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update backtest run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("backtest run not found: %s", run.ID)
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("symbol", run.Symbol).
		Str("status", string(run.Status)).
		Int("strategies", run.StrategyCount).
		Int("failed", run.FailedCount).
		Msg("Backtest run finished")

	return nil
}

// RecentRuns lists the latest runs of symbol, newest first
func (r *RunRepository) RecentRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	if err := r.db.available(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, symbol, status, start_date, end_date, strategy_count, failed_count,
		       COALESCE(error_stage, ''), COALESCE(error_message, ''), started_at, completed_at
		FROM backtest_runs
		WHERE symbol = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var status string
		if err := rows.Scan(
			&run.ID, &run.Symbol, &status, &run.StartDate, &run.EndDate,
			&run.StrategyCount, &run.FailedCount, &run.ErrorStage, &run.ErrorMessage,
			&run.StartedAt, &run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		run.Status = RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}

	return runs, nil
}
