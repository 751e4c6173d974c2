// Package postgres implements store.Store against Postgres via pgx,
// grounded on the teacher's internal/infrastructure/postgres package: the
// same pool-construction defaults (db.go), the same single-row
// UPDATE...WHERE...RETURNING CAS idiom (job_repo.go's Claim/Complete/
// Reschedule), and the same FOR UPDATE SKIP LOCKED claim pattern, now
// generalized to the full job lifecycle spec.md defines.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a connection pool tuned the same way the teacher's
// internal/infrastructure/postgres.NewPool is: a handful of warm
// connections, bounded lifetime, and a short connect timeout so a down
// database fails fast at startup rather than hanging Initialize.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 5
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}
