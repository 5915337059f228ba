package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// Postgres stores one snapshot row per run, upserted on every transition.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection, mainly for tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Save(ctx context.Context, runID string, snapshot []byte) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO checkpoints (run_id, snapshot, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (run_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		runID, snapshot)
	if err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", runID, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, runID string) ([]byte, error) {
	var snapshot []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE run_id = $1`, runID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", runID, err)
	}
	return snapshot, nil
}

func (p *Postgres) Delete(ctx context.Context, runID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", runID, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT run_id FROM checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) Close() error { return p.db.Close() }
