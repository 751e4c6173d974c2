package monque

import (
	"time"

	"github.com/relaysched/monque/internal/engine"
)

// Handler is the unit of work registered for a job name, invoked with the
// job's opaque payload and the job record itself.
type Handler = engine.HandlerFunc

// WorkerOptions configures a single Worker registration.
type WorkerOptions struct {
	// Replace allows overwriting a handler already registered for the
	// same name instead of failing with WorkerRegistrationError.
	Replace bool
	// Concurrency bounds simultaneous executions of this handler name,
	// independent of Options.WorkerConcurrency. Zero means unbounded
	// (subject only to the pool-wide cap).
	Concurrency int
}

// EnqueueOptions configures a single Enqueue call.
type EnqueueOptions struct {
	// Delay adds to nextRunAt, deferring eligibility.
	Delay time.Duration
	// UniqueKey enables idempotent enqueue: a second Enqueue call with the
	// same (name, UniqueKey) while the first is non-terminal returns the
	// existing job instead of inserting a new one.
	UniqueKey string
}

// ScheduleOptions configures a single Schedule call.
type ScheduleOptions struct {
	// UniqueKey defaults to a deterministic fingerprint of (name, cron)
	// so re-registering the same recurring job does not duplicate it.
	UniqueKey string
}
