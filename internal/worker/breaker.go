package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/alphafuse/internal/metrics"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// Store circuit breaker defaults
const (
	StoreMinRequests     = 5
	StoreFailureRatio    = 0.6
	StoreOpenTimeout     = 15 * time.Second
	StoreHalfOpenMaxReqs = 2
	StoreCountInterval   = 30 * time.Second
)

// BreakerSettings configures a BreakerStore
type BreakerSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// DefaultBreakerSettings returns the store breaker defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     StoreMinRequests,
		FailureRatio:    StoreFailureRatio,
		OpenTimeout:     StoreOpenTimeout,
		HalfOpenMaxReqs: StoreHalfOpenMaxReqs,
		CountInterval:   StoreCountInterval,
	}
}

// BreakerStore guards a ResultStore with a circuit breaker so a dead database
// fails runs fast instead of waiting out every timeout
type BreakerStore struct {
	next ResultStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next
func NewBreakerStore(next ResultStore, settings BreakerSettings) *BreakerStore {
	return &BreakerStore{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "result_store",
			MaxRequests: settings.HalfOpenMaxReqs,
			Interval:    settings.CountInterval,
			Timeout:     settings.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests == 0 {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
				metrics.UpdateCircuitBreaker(to == gobreaker.StateOpen)
			},
		}),
	}
}

// State returns the breaker state
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// SaveStrategyResults implements ResultStore
func (s *BreakerStore) SaveStrategyResults(ctx context.Context, runID uuid.UUID, symbol string, results []ensemble.StrategyResult) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.SaveStrategyResults(ctx, runID, symbol, results)
	})
	return err
}

// SaveDecision implements ResultStore
func (s *BreakerStore) SaveDecision(ctx context.Context, runID uuid.UUID, d *ensemble.Decision) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.SaveDecision(ctx, runID, d)
	})
	return err
}

// CurrentPosition implements ResultStore
func (s *BreakerStore) CurrentPosition(ctx context.Context, symbol string) (float64, error) {
	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.CurrentPosition(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}
