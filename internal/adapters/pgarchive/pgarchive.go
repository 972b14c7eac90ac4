// Package pgarchive persists capacity snapshots and efficiency samples to
// Postgres for historical reporting. It is an append-only history sink fed
// by CapacityReporter, not a recovery path: in-flight job state itself is
// never persisted across restarts.
package pgarchive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxforge/workercore/internal/core"
)

// Archiver appends capacity/efficiency samples to a history table.
type Archiver struct {
	pool   *pgxpool.Pool
	nodeID string
}

// New connects a pool against connString, sized for one worker's light,
// periodic write volume rather than the control plane's concurrent load.
func New(ctx context.Context, connString, nodeID string) (*Archiver, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Archiver{pool: pool, nodeID: nodeID}, nil
}

// Close closes the connection pool.
func (a *Archiver) Close() { a.pool.Close() }

// RecordSnapshot appends one capacity sample.
func (a *Archiver) RecordSnapshot(ctx context.Context, snap core.CapacitySnapshot) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO worker_capacity_history (node_id, idle, busy, sampled_at)
		VALUES ($1, $2, $3, $4)
	`, a.nodeID, snap.Idle, snap.Busy, snap.Time)
	if err != nil {
		return fmt.Errorf("record capacity snapshot: %w", err)
	}
	return nil
}

// RecordEfficiency appends one efficiency-percent sample.
func (a *Archiver) RecordEfficiency(ctx context.Context, percent float64) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO worker_efficiency_history (node_id, efficiency_percent, sampled_at)
		VALUES ($1, $2, NOW())
	`, a.nodeID, percent)
	if err != nil {
		return fmt.Errorf("record efficiency: %w", err)
	}
	return nil
}
