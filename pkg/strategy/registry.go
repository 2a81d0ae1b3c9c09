// Package strategy holds the table of signal-generating strategies the
// worker can resolve by id, and the built-in strategies themselves.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// Definition describes a registered strategy
type Definition struct {
	ID          string
	Description string
	Factory     backtest.StrategyFactory
	Defaults    backtest.ParameterSet
	DefaultGrid backtest.ParamGrid
}

// Build creates the strategy with params layered over the defaults
func (d *Definition) Build(params backtest.ParameterSet) (backtest.Strategy, error) {
	merged := d.Defaults.Clone()
	for k, v := range params {
		merged[k] = v
	}
	return d.Factory(merged)
}

// Registry maps strategy ids, and optional aliases, to definitions
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	aliases map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]*Definition),
		aliases: make(map[string]string),
	}
}

// Register adds a definition; ids must be unique
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("strategy definition requires an id")
	}
	if def.Factory == nil {
		return fmt.Errorf("strategy %s: factory is required", def.ID)
	}
	if def.Defaults == nil {
		def.Defaults = backtest.ParameterSet{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("strategy %s already registered", def.ID)
	}
	if _, exists := r.aliases[def.ID]; exists {
		return fmt.Errorf("strategy %s conflicts with an alias", def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// Alias makes name resolve to an already registered id
func (r *Registry) Alias(name, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[id]; !ok {
		return fmt.Errorf("cannot alias %s: strategy %s not registered", name, id)
	}
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("alias %s conflicts with a registered strategy", name)
	}
	r.aliases[name] = id
	return nil
}

// Lookup resolves an id or alias
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.aliases[name]; ok {
		name = id
	}
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered ids in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for id := range r.defs {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// MustRegister panics if Register fails; used for static tables
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// DefaultRegistry returns a registry holding the built-in strategies, with
// aliases for the class names used by older strategy pools
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range builtins() {
		r.MustRegister(def)
	}
	for alias, id := range map[string]string{
		"ValueStrategy":    BuyAndHoldID,
		"EMACrossStrategy": EMACrossID,
		"LLMStrategy":      ScoreThresholdID,
	} {
		if err := r.Alias(alias, id); err != nil {
			panic(err)
		}
	}
	return r
}
