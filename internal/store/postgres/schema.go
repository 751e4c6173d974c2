package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Initialize creates the jobs table and every required index from spec.md
// §3: (status, next_run_at) for polling; a partial unique index on
// (name, unique_key) scoped to non-terminal jobs for idempotency;
// (status, updated_at) for retention; (claimed_by, locked_at) for recovery.
// Safe to call repeatedly.
func (s *Store) Initialize(ctx context.Context) error {
	collectionName := s.collection
	table := s.table

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name            text NOT NULL,
	data            jsonb NOT NULL DEFAULT '{}'::jsonb,
	status          text NOT NULL,
	next_run_at     timestamptz NOT NULL,
	fail_count      integer NOT NULL DEFAULT 0,
	created_at      timestamptz NOT NULL DEFAULT now(),
	updated_at      timestamptz NOT NULL DEFAULT now(),
	repeat_interval text,
	unique_key      text,
	locked_at       timestamptz,
	claimed_by      text,
	fail_reason     text
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (status, next_run_at);

CREATE UNIQUE INDEX IF NOT EXISTS %[3]s ON %[1]s (name, unique_key)
	WHERE unique_key IS NOT NULL AND status NOT IN ('completed', 'failed', 'cancelled');

CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s (status, updated_at);

CREATE INDEX IF NOT EXISTS %[5]s ON %[1]s (claimed_by, locked_at);
`,
		table,
		pgx.Identifier{collectionName + "_poll_idx"}.Sanitize(),
		pgx.Identifier{collectionName + "_unique_key_idx"}.Sanitize(),
		pgx.Identifier{collectionName + "_retention_idx"}.Sanitize(),
		pgx.Identifier{collectionName + "_recovery_idx"}.Sanitize(),
	)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
