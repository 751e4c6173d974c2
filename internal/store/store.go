// Package store defines the Store interface through which every other
// component touches job state, generalizing the teacher's
// internal/repository.JobRepository interface
// ("UseCase depends on interface, not concrete implementation... we can
// pass a mock implementation of interface in tests") from a webhook-queue
// shape to the full pending/processing/completed/failed/cancelled/recurring
// lifecycle spec.md requires.
package store

import (
	"context"
	"time"

	"github.com/relaysched/monque/internal/model"
)

// Store is the sole means by which other components read or write jobs.
// All compare-and-set operations on a single job are atomic; batch
// operations are defined to iterate such single-document CAS updates.
type Store interface {
	// Insert inserts a new job with status=pending, failCount=0,
	// createdAt=updatedAt=now. If job.UniqueKey is set and a non-terminal
	// job with (name, uniqueKey) already exists, it returns that job
	// instead of inserting — idempotent enqueue.
	Insert(ctx context.Context, job *model.Job) (*model.Job, error)

	// GetByID returns the job with the given id, or a not-found error.
	GetByID(ctx context.Context, id string) (*model.Job, error)

	// ClaimBatch atomically selects up to limit jobs with
	// status=pending AND nextRunAt<=now, ordered by nextRunAt then id, and
	// CAS-transitions each to status=processing, claimedBy=instanceID,
	// lockedAt=now. The CAS condition includes status=pending so two
	// instances racing the same candidate produce exactly one winner.
	ClaimBatch(ctx context.Context, instanceID string, limit int, now time.Time, leaseDuration time.Duration) ([]*model.Job, error)

	// Heartbeat extends the lease (lockedAt=now) for every id in ids whose
	// claimedBy=instanceID and status=processing. Non-matching ids are
	// silently skipped and returned in the stolen slice.
	Heartbeat(ctx context.Context, instanceID string, ids []string, now time.Time) (stolen []string, err error)

	// CompleteSuccess CAS-transitions id from processing (claimed by
	// instanceID) to completed, clearing the lease. ok is false if the
	// precondition no longer held (lease lost).
	CompleteSuccess(ctx context.Context, instanceID, id string, now time.Time) (ok bool, err error)

	// CompleteRecurring CAS-transitions id from processing (claimed by
	// instanceID) back to pending with failCount reset to 0 and
	// nextRunAt advanced, clearing the lease.
	CompleteRecurring(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (ok bool, err error)

	// CompleteRetry CAS-transitions id from processing (claimed by
	// instanceID) back to pending with failCount incremented and
	// nextRunAt set to the backoff instant, clearing the lease.
	CompleteRetry(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (ok bool, err error)

	// CompleteFail CAS-transitions id from processing (claimed by
	// instanceID) to failed, incrementing failCount, clearing the lease.
	CompleteFail(ctx context.Context, instanceID, id string, failReason string, now time.Time) (ok bool, err error)

	// RecoverStale scans for jobs with status=processing whose lockedAt is
	// older than now-leaseDuration. Each is credited a failed attempt with
	// failReason "lease expired"; jobs whose resulting failCount would
	// reach maxRetries move directly to failed instead of pending. Bounded
	// to limit rows per call. Returns the ids it recovered, split by
	// outcome.
	RecoverStale(ctx context.Context, now time.Time, leaseDuration time.Duration, maxRetries, limit int) (recovered []RecoveredJob, err error)

	// Cancel CAS-transitions id from pending to cancelled. Returns
	// ErrNotFound if the job does not exist, and ok=false (no error) if it
	// existed but was not in pending.
	Cancel(ctx context.Context, id string) (ok bool, err error)

	// Query compiles filter and returns one page, keyset-paginated over
	// (createdAt, id).
	Query(ctx context.Context, filter model.Filter, page model.Page) (model.PageResult, error)

	// DeleteTerminalOlderThan deletes up to limit jobs with the given
	// terminal status and updatedAt < cutoff. Returns the deleted ids.
	DeleteTerminalOlderThan(ctx context.Context, status model.Status, cutoff time.Time, limit int) ([]string, error)

	// Initialize creates the jobs table (if using an embedded schema) and
	// every required index. Idempotent.
	Initialize(ctx context.Context) error
}

// RecoveredJob describes one job recovery's outcome, used by the recovery
// service to emit job:recovered vs job:failed events without a second
// round trip to the store.
type RecoveredJob struct {
	ID          string
	MovedToFail bool
}

// ErrNotFound is returned by store implementations (wrapped in
// monque.NotFoundError at the facade boundary) when a targeted mutation
// addresses a missing job.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: job not found" }

// ErrInvalidCursor is returned (wrapped, via errors.Is) by Query
// implementations when page.Cursor fails to decode. Mapped to
// monque.InvalidCursorError at the facade boundary.
var ErrInvalidCursor = errInvalidCursor{}

type errInvalidCursor struct{}

func (errInvalidCursor) Error() string { return "store: invalid cursor" }
