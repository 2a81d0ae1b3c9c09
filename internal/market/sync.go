package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Invalidator drops cached windows of a symbol after new bars land
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string) (int, error)
}

// SyncService copies bars from a source (usually candle files) into a sink
// (the database), either once or periodically
type SyncService struct {
	source   CandleSource
	sink     CandleSink
	cache    Invalidator
	symbols  []string
	lookback time.Duration
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewSyncService creates a candle sync service. cache may be nil.
func NewSyncService(source CandleSource, sink CandleSink, cache Invalidator, symbols []string, lookback, interval time.Duration) *SyncService {
	return &SyncService{
		source:   source,
		sink:     sink,
		cache:    cache,
		symbols:  symbols,
		lookback: lookback,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start syncs immediately and then on every tick until ctx ends or Stop
func (s *SyncService) Start(ctx context.Context) error {
	log.Info().
		Strs("symbols", s.symbols).
		Dur("interval", s.interval).
		Msg("Starting candle sync service")

	if _, err := s.SyncAll(ctx); err != nil {
		log.Error().Err(err).Msg("Initial sync failed")
	}

	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Candle sync service stopped (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			log.Info().Msg("Candle sync service stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				log.Error().Err(err).Msg("Periodic sync failed")
			}
		}
	}
}

// Stop stops the sync service
func (s *SyncService) Stop() {
	close(s.stopCh)
}

// SyncAll syncs every symbol; one failing symbol does not stop the others.
// It returns the total number of bars written.
func (s *SyncService) SyncAll(ctx context.Context) (int, error) {
	startTime := s.now()
	total := 0
	failed := 0

	for _, symbol := range s.symbols {
		n, err := s.SyncSymbol(ctx, symbol)
		if err != nil {
			failed++
			log.Error().
				Err(err).
				Str("symbol", symbol).
				Msg("Failed to sync symbol")
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			continue
		}
		total += n
	}

	log.Info().
		Dur("duration", s.now().Sub(startTime)).
		Int("symbols_count", len(s.symbols)).
		Int("failed", failed).
		Int("candles", total).
		Msg("Completed sync for all symbols")

	if failed == len(s.symbols) && failed > 0 {
		return total, fmt.Errorf("all %d symbols failed to sync", failed)
	}
	return total, nil
}

// SyncSymbol copies the lookback window of one symbol
func (s *SyncService) SyncSymbol(ctx context.Context, symbol string) (int, error) {
	end := s.now()
	start := end.Add(-s.lookback)

	candles, err := s.source.Load(ctx, symbol, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to load candles: %w", err)
	}
	if len(candles) == 0 {
		log.Debug().Str("symbol", symbol).Msg("No candles to store")
		return 0, nil
	}

	n, err := s.sink.Save(ctx, symbol, candles)
	if err != nil {
		return 0, fmt.Errorf("failed to store candles: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.Invalidate(ctx, symbol); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to invalidate candle cache")
		}
	}

	log.Info().
		Str("symbol", symbol).
		Int("candles", n).
		Msg("Synced symbol")

	return n, nil
}
