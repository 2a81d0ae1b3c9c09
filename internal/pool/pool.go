// Package pool manages strategy pools: the list of strategy classes, with their
// parameter grids, that a symbol is backtested against. Pools can be imported
// from and exported to YAML or JSON files and are versioned so older files keep
// loading after the schema changes.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SchemaVersion is the current pool file schema version
const SchemaVersion = "1.1"

// Pool is an exportable strategy pool
type Pool struct {
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Strategies []Entry  `yaml:"strategies" json:"strategies"`
}

// Metadata identifies and describes a pool file
type Metadata struct {
	// Schema version for compatibility
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// Unique identifier (generated on export)
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Source (e.g., "database", "export", "import")
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// Entry is one strategy in the pool. ParamConfigs is the raw parameter-grid
// payload: a mapping of parameter name to candidate values, a JSON string of
// one, or nothing for the strategy defaults. Decode it with ParseParamGrid.
type Entry struct {
	ID           int64       `yaml:"id,omitempty" json:"id,omitempty"`
	Name         string      `yaml:"name" json:"name"`
	Class        string      `yaml:"class" json:"class"`
	ParamConfigs interface{} `yaml:"param_configs,omitempty" json:"param_configs,omitempty"`

	// Params is the 1.0 name of ParamConfigs, moved by Migrate
	Params interface{} `yaml:"params,omitempty" json:"params,omitempty"`
}

// DisplayName returns the entry name, falling back to its class
func (e Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Class
}

// NewDefaultPool returns a pool holding the standard strategy set
func NewDefaultPool(name string) *Pool {
	now := time.Now()
	return &Pool{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			Name:          name,
			Description:   "Default strategy pool",
			CreatedAt:     now,
			UpdatedAt:     now,
			Source:        "default",
		},
		Strategies: []Entry{
			{Name: "Buy and hold", Class: "buy_and_hold"},
			{Name: "EMA cross", Class: "ema_cross", ParamConfigs: map[string]interface{}{
				"short": []interface{}{10, 12, 15},
				"long":  []interface{}{20, 26, 30},
			}},
			{Name: "Score threshold", Class: "score_threshold", ParamConfigs: map[string]interface{}{
				"buy_score":  []interface{}{0.5, 0.6, 0.7, 0.8},
				"sell_score": []interface{}{0.0, 0.2, -0.1},
			}},
		},
	}
}

// ============================================================================
// FILE SOURCE
// ============================================================================

// FileSource serves the pool from a YAML or JSON file. The file is re-read
// when its modification time changes.
type FileSource struct {
	path string

	mu       sync.Mutex
	modTime  time.Time
	cached   []Entry
	statFile func(path string) (time.Time, error)
}

// NewFileSource creates a pool source backed by path
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, statFile: fileModTime}
}

// ActivePool returns the entries of the pool file
func (s *FileSource) ActivePool(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	modTime, err := s.statFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat pool file: %w", err)
	}
	if s.cached != nil && modTime.Equal(s.modTime) {
		return s.cached, nil
	}

	p, err := ImportFromFile(s.path, DefaultImportOptions())
	if err != nil {
		return nil, err
	}

	s.cached = p.Strategies
	s.modTime = modTime

	log.Info().
		Str("path", s.path).
		Str("pool", p.Metadata.Name).
		Int("strategies", len(p.Strategies)).
		Msg("Strategy pool loaded from file")

	return s.cached, nil
}
