package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// CandleRepository reads and writes bars of one interval
type CandleRepository struct {
	db       *DB
	interval string
}

// NewCandleRepository creates a candle repository for the given bar interval
func NewCandleRepository(db *DB, interval string) *CandleRepository {
	if interval == "" {
		interval = "1d"
	}
	return &CandleRepository{db: db, interval: interval}
}

// Interval returns the bar interval the repository serves
func (r *CandleRepository) Interval() string {
	return r.interval
}

// Load returns the bars of symbol with open_time in [start, end], ascending
func (r *CandleRepository) Load(ctx context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error) {
	if err := r.db.available(); err != nil {
		return nil, err
	}

	query := `
		SELECT open_time, open, high, low, close, volume, score
		FROM candlesticks
		WHERE symbol = $1 AND interval = $2 AND open_time >= $3 AND open_time <= $4
		ORDER BY open_time ASC
	`

	rows, err := r.db.pool.Query(ctx, query, symbol, r.interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []backtest.Candle
	for rows.Next() {
		var c backtest.Candle
		if err := rows.Scan(&c.Date, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	log.Debug().
		Str("symbol", symbol).
		Str("interval", r.interval).
		Int("count", len(candles)).
		Msg("Loaded candles from database")

	return candles, nil
}

// Save upserts bars for symbol in one transaction and returns the row count
func (r *CandleRepository) Save(ctx context.Context, symbol string, candles []backtest.Candle) (int, error) {
	if err := r.db.available(); err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO candlesticks (symbol, interval, open_time, open, high, low, close, volume, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			score = EXCLUDED.score
	`

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range candles {
			if _, err := tx.Exec(ctx, query, symbol, r.interval, c.Date, c.Open, c.High, c.Low, c.Close, c.Volume, c.Score); err != nil {
				return fmt.Errorf("failed to upsert candle %s %s: %w", symbol, c.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("symbol", symbol).
		Str("interval", r.interval).
		Int("count", len(candles)).
		Msg("Candles saved")

	return len(candles), nil
}
