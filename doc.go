// Package monque implements a distributed job scheduler and worker runtime
// backed by Postgres as the single source of truth for job state.
//
// Many scheduler instances may run concurrently against the same table;
// each instance polls for due jobs, atomically claims them under a
// time-bounded lease, executes a registered handler, and records the
// outcome. One-shot jobs, delayed jobs, recurring (cron) jobs, idempotency
// keys, bounded retries with exponential backoff, stale-lease recovery, and
// age-based retention cleanup are all supported.
package monque
