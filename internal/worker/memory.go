package worker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ajitpratap0/alphafuse/internal/pool"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// StaticPool serves a fixed list of pool entries
type StaticPool []pool.Entry

// ActivePool implements PoolSource
func (p StaticPool) ActivePool(context.Context) ([]pool.Entry, error) {
	return p, nil
}

// MemoryStore keeps results in process memory, for one-off CLI runs
type MemoryStore struct {
	mu        sync.RWMutex
	results   map[string][]ensemble.StrategyResult
	decisions map[string]*ensemble.Decision
	positions map[string]float64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:   make(map[string][]ensemble.StrategyResult),
		decisions: make(map[string]*ensemble.Decision),
		positions: make(map[string]float64),
	}
}

// SetPosition seeds the position reported for symbol until a decision replaces it
func (m *MemoryStore) SetPosition(symbol string, position float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = position
}

// SaveStrategyResults implements ResultStore
func (m *MemoryStore) SaveStrategyResults(_ context.Context, _ uuid.UUID, symbol string, results []ensemble.StrategyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[symbol] = append([]ensemble.StrategyResult(nil), results...)
	return nil
}

// SaveDecision implements ResultStore
func (m *MemoryStore) SaveDecision(_ context.Context, _ uuid.UUID, d *ensemble.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[d.Symbol] = d
	m.positions[d.Symbol] = d.SuggestedPosition
	return nil
}

// CurrentPosition implements ResultStore
func (m *MemoryStore) CurrentPosition(_ context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[symbol], nil
}

// Decision returns the last decision saved for symbol
func (m *MemoryStore) Decision(symbol string) *ensemble.Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.decisions[symbol]
}
