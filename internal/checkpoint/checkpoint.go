// Package checkpoint persists run state snapshots keyed by run id, enabling
// pause, crash-resume, and human-in-the-loop suspension. A snapshot is an
// opaque JSON blob produced by the engine; this package never inspects it.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/reagent/config"
)

// ErrNotFound is returned by Load when no snapshot exists for the run id.
var ErrNotFound = errors.New("checkpoint not found")

// Store is the durable snapshot store. Writes for one run are serialized by
// the engine (single writer per run); implementations only need to be safe
// across runs.
type Store interface {
	Save(ctx context.Context, runID string, snapshot []byte) error
	Load(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
	List(ctx context.Context) ([]string, error)
}

// New selects a checkpoint backend from configuration.
func New(ctx context.Context, cfg config.CheckpointConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "postgres":
		return NewPostgres(ctx, cfg.Postgres.DSN())
	default:
		return nil, fmt.Errorf("unsupported checkpoint backend: %s", cfg.Backend)
	}
}
