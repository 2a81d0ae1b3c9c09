// Package market supplies candles to the worker: straight from files, from
// the database, or through a Redis read-through cache.
package market

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// CandleSource loads the bars of one symbol with dates in [start, end]
type CandleSource interface {
	Load(ctx context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error)
}

// CandleSink stores bars of one symbol
type CandleSink interface {
	Save(ctx context.Context, symbol string, candles []backtest.Candle) (int, error)
}

// DirSource reads <dir>/<symbol>.csv or <dir>/<symbol>.json
type DirSource struct {
	dir string
}

// NewDirSource creates a file-backed candle source
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Load reads the symbol's file and keeps the bars inside the window
func (s *DirSource) Load(ctx context.Context, symbol string, start, end time.Time) ([]backtest.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(symbol)
	if err != nil {
		return nil, err
	}

	candles, err := backtest.LoadCandles(path)
	if err != nil {
		return nil, err
	}

	return Window(candles, start, end), nil
}

func (s *DirSource) path(symbol string) (string, error) {
	for _, ext := range []string{".csv", ".json"} {
		path := filepath.Join(s.dir, filepath.Base(symbol)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no candle file for %s in %s", symbol, s.dir)
}

// Window returns the bars with dates in [start, end]. A zero bound is open.
func Window(candles []backtest.Candle, start, end time.Time) []backtest.Candle {
	out := make([]backtest.Candle, 0, len(candles))
	for _, c := range candles {
		if !start.IsZero() && c.Date.Before(start) {
			continue
		}
		if !end.IsZero() && c.Date.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}
