package monque

import (
	"log/slog"
	"time"
)

// RetentionOptions configures the retention service. Retention is disabled
// when Interval is zero, which is the default.
type RetentionOptions struct {
	// Completed is how long after completion a completed job is kept.
	Completed time.Duration
	// Failed is how long after completion a failed job is kept.
	Failed time.Duration
	// Interval is the sweep period. Zero disables the retention service.
	Interval time.Duration
}

// Options configures a Scheduler. Zero-value fields are replaced with the
// defaults documented on each field by WithDefaults.
type Options struct {
	// CollectionName is the physical table name. Default "monque_jobs".
	CollectionName string

	// PollInterval is the poller period. Default 1s.
	PollInterval time.Duration
	// MaxRetries is the number of attempts (including the first) before a
	// job is moved to failed. Default 3.
	MaxRetries int
	// BaseRetryInterval is the backoff base. Default 1s.
	BaseRetryInterval time.Duration
	// MaxBackoffDelay caps the backoff delay. Default 24h.
	MaxBackoffDelay time.Duration

	// ShutdownTimeout bounds how long Stop waits for in-flight workers.
	// Default 5s.
	ShutdownTimeout time.Duration

	// WorkerConcurrency is the global in-flight cap for this instance.
	// Default 5.
	WorkerConcurrency int
	// InstanceConcurrency overrides WorkerConcurrency for the poller's
	// claim-batch sizing when set (> 0).
	InstanceConcurrency int

	// LockTimeout is the lease duration. Default 30s.
	LockTimeout time.Duration
	// HeartbeatInterval is the lease-extension period. Must be less than
	// LockTimeout/3. Default LockTimeout/3.
	HeartbeatInterval time.Duration

	// RecoverStaleJobs enables the recovery service. Default true.
	RecoverStaleJobs *bool

	// SchedulerInstanceID tags claimed jobs. Default hostname-pid followed
	// by a random 8-character suffix.
	SchedulerInstanceID string

	// JobRetention configures the retention service. Disabled by default.
	JobRetention RetentionOptions

	// Logger receives structured log output from every background
	// service. Default slog.Default().
	Logger *slog.Logger
}

func boolPtr(b bool) *bool { return &b }

// WithDefaults returns a copy of o with every zero-value field replaced by
// its documented default.
func (o Options) WithDefaults() Options {
	if o.CollectionName == "" {
		o.CollectionName = "monque_jobs"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseRetryInterval <= 0 {
		o.BaseRetryInterval = time.Second
	}
	if o.MaxBackoffDelay <= 0 {
		o.MaxBackoffDelay = 24 * time.Hour
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.WorkerConcurrency <= 0 {
		o.WorkerConcurrency = 5
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = o.LockTimeout / 3
	}
	if o.RecoverStaleJobs == nil {
		o.RecoverStaleJobs = boolPtr(true)
	}
	if o.SchedulerInstanceID == "" {
		o.SchedulerInstanceID = newInstanceID()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// effectiveConcurrency returns the in-flight cap the worker pool and
// poller should use: InstanceConcurrency overrides WorkerConcurrency when
// set, per spec.md 6 ("instanceConcurrency: alias or per-instance
// override").
func (o Options) effectiveConcurrency() int {
	if o.InstanceConcurrency > 0 {
		return o.InstanceConcurrency
	}
	return o.WorkerConcurrency
}
