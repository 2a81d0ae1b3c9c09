package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/pool"
)

// StrategyPoolRepository handles the strategy_pool table
type StrategyPoolRepository struct {
	db *DB
}

// NewStrategyPoolRepository creates a new strategy pool repository
func NewStrategyPoolRepository(db *DB) *StrategyPoolRepository {
	return &StrategyPoolRepository{db: db}
}

// ActivePool returns every pool row in insertion order. param_configs is
// returned raw; callers decode it with pool.ParseParamGrid.
func (r *StrategyPoolRepository) ActivePool(ctx context.Context) ([]pool.Entry, error) {
	if err := r.db.available(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, strategy_name, strategy_class, param_configs
		FROM strategy_pool
		ORDER BY id ASC
	`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy pool: %w", err)
	}
	defer rows.Close()

	var entries []pool.Entry
	for rows.Next() {
		var e pool.Entry
		var params string
		if err := rows.Scan(&e.ID, &e.Name, &e.Class, &params); err != nil {
			return nil, fmt.Errorf("failed to scan strategy pool row: %w", err)
		}
		e.ParamConfigs = params
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy pool: %w", err)
	}

	return entries, nil
}

const upsertPoolEntry = `
	INSERT INTO strategy_pool (strategy_name, strategy_class, param_configs)
	VALUES ($1, $2, $3)
	ON CONFLICT (strategy_class, param_configs) DO UPDATE SET
		strategy_name = EXCLUDED.strategy_name,
		updated_at = NOW()
	RETURNING id
`

// Add inserts an entry, or renames the existing row with the same class and
// parameters. Parameters are stored in canonical JSON so equal grids collide.
func (r *StrategyPoolRepository) Add(ctx context.Context, e pool.Entry) (int64, error) {
	if err := r.db.available(); err != nil {
		return 0, err
	}

	params, err := canonicalParams(e)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.db.pool.QueryRow(ctx, upsertPoolEntry, e.DisplayName(), e.Class, params).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to add %s to strategy pool: %w", e.Class, err)
	}

	return id, nil
}

// Import adds every entry of p in one transaction
func (r *StrategyPoolRepository) Import(ctx context.Context, p *pool.Pool) (int, error) {
	if err := r.db.available(); err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("pool cannot be nil")
	}

	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range p.Strategies {
			params, err := canonicalParams(e)
			if err != nil {
				return err
			}
			var id int64
			if err := tx.QueryRow(ctx, upsertPoolEntry, e.DisplayName(), e.Class, params).Scan(&id); err != nil {
				return fmt.Errorf("failed to add %s to strategy pool: %w", e.Class, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Str("pool", p.Metadata.Name).
		Int("strategies", len(p.Strategies)).
		Msg("Strategy pool imported into database")

	return len(p.Strategies), nil
}

// Export reads the table back as a pool document
func (r *StrategyPoolRepository) Export(ctx context.Context, name string) (*pool.Pool, error) {
	entries, err := r.ActivePool(ctx)
	if err != nil {
		return nil, err
	}

	p := &pool.Pool{
		Metadata: pool.Metadata{
			SchemaVersion: pool.SchemaVersion,
			Name:          name,
			Source:        "database",
		},
		Strategies: make([]pool.Entry, 0, len(entries)),
	}
	for _, e := range entries {
		grid, err := pool.ParseParamGrid(e.ParamConfigs)
		if err != nil {
			log.Warn().Err(err).Int64("id", e.ID).Str("class", e.Class).Msg("Exporting unparsable param payload as-is")
			p.Strategies = append(p.Strategies, e)
			continue
		}
		e.ParamConfigs = grid
		p.Strategies = append(p.Strategies, e)
	}

	return p, nil
}

// Remove deletes a pool row by id
func (r *StrategyPoolRepository) Remove(ctx context.Context, id int64) error {
	if err := r.db.available(); err != nil {
		return err
	}

	tag, err := r.db.pool.Exec(ctx, `DELETE FROM strategy_pool WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove strategy pool entry %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("strategy pool entry not found: %d", id)
	}
	return nil
}

func canonicalParams(e pool.Entry) (string, error) {
	if e.Class == "" {
		return "", fmt.Errorf("strategy class is required")
	}
	grid, err := pool.ParseParamGrid(e.ParamConfigs)
	if err != nil {
		return "", fmt.Errorf("strategy %s: %w", e.Class, err)
	}
	return pool.GridKey(grid), nil
}
