package monque

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysched/monque/internal/cronx"
	"github.com/relaysched/monque/internal/engine"
	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/store"
	"github.com/relaysched/monque/internal/store/postgres"
)

// Scheduler is the public facade spec.md 4.11 describes: enqueue,
// schedule, cancel, query, register handler, start, stop. Grounded on the
// teacher's internal/usecase package (its usecase.Job is a near-empty
// stub; this is the full facade it was meant to become), generalized
// from a request-scoped HTTP usecase into a long-lived library object
// owning the background services for the lifetime of the process.
type Scheduler struct {
	store store.Store
	opts  Options
	bus   *events.Bus

	registry  *engine.Registry
	pool      *engine.WorkerPool
	poller    *engine.Poller
	heartbeat *engine.Heartbeat
	recovery  *engine.Recovery
	retention *engine.Retention

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New constructs a Scheduler backed by pool. Construction does no I/O;
// call Initialize before Start to create the table and indexes.
func New(pool *pgxpool.Pool, opts Options) *Scheduler {
	opts = opts.WithDefaults()
	return newScheduler(postgres.New(pool, opts.CollectionName), opts)
}

func newScheduler(st store.Store, opts Options) *Scheduler {
	opts = opts.WithDefaults()
	bus := events.NewBus()
	registry := engine.NewRegistry()

	pool := engine.NewWorkerPool(registry, st, bus, opts.Logger, opts.SchedulerInstanceID, opts.effectiveConcurrency(), opts.MaxRetries, opts.BaseRetryInterval, opts.MaxBackoffDelay)
	poller := engine.NewPoller(st, pool, bus, opts.Logger, opts.SchedulerInstanceID, opts.PollInterval, opts.LockTimeout)
	heartbeat := engine.NewHeartbeat(st, pool, opts.Logger, opts.SchedulerInstanceID, opts.HeartbeatInterval)
	recovery := engine.NewRecovery(st, bus, opts.Logger, opts.LockTimeout, opts.MaxRetries)
	retention := engine.NewRetention(st, bus, opts.Logger, opts.JobRetention.Interval, opts.JobRetention.Completed, opts.JobRetention.Failed)

	return &Scheduler{
		store:     st,
		opts:      opts,
		bus:       bus,
		registry:  registry,
		pool:      pool,
		poller:    poller,
		heartbeat: heartbeat,
		recovery:  recovery,
		retention: retention,
	}
}

// Initialize creates the jobs table and every required index. Idempotent.
func (s *Scheduler) Initialize(ctx context.Context) error {
	if err := s.store.Initialize(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// Start launches the poller, heartbeat, recovery (if enabled), and
// retention (if configured) background services. Safe to call once; a
// second call before Stop is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	metrics.InstanceStartTime.Set(float64(time.Now().Unix()))

	go s.poller.Start(bgCtx)
	go s.heartbeat.Start(bgCtx)
	if s.opts.RecoverStaleJobs != nil && *s.opts.RecoverStaleJobs {
		go s.recovery.Start(bgCtx)
	}
	if s.opts.JobRetention.Interval > 0 {
		go s.retention.Start(bgCtx)
	}

	s.bus.Emit(events.Event{Name: events.SchedulerStarted})
	return nil
}

// Stop marks the instance not-running and waits up to timeout for
// in-flight workers to finish. If the deadline elapses with work
// outstanding, it returns *ShutdownTimeoutError carrying the incomplete
// job ids — their leases will be reclaimed by recovery after
// Options.LockTimeout. A zero timeout uses Options.ShutdownTimeout.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	if timeout <= 0 {
		timeout = s.opts.ShutdownTimeout
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), timeout)
	defer waitCancel()

	if !s.pool.Wait(waitCtx) {
		ids := s.pool.InFlightIDs()
		return &ShutdownTimeoutError{IncompleteJobIDs: ids}
	}

	metrics.InstanceShutdownsTotal.Inc()
	s.bus.Emit(events.Event{Name: events.SchedulerStopped})
	return nil
}

// Enqueue inserts an immediate (or delayed) job. If opts.UniqueKey is set
// and a non-terminal job with (name, UniqueKey) already exists, the
// existing job is returned and no new row is inserted.
func (s *Scheduler) Enqueue(ctx context.Context, name string, data any, opts EnqueueOptions) (*Job, error) {
	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &model.Job{
		Name:      name,
		Data:      raw,
		NextRunAt: now.Add(opts.Delay),
		UniqueKey: opts.UniqueKey,
	}

	inserted, err := s.store.Insert(ctx, job)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	s.bus.Emit(events.Event{Name: events.JobEnqueued, JobID: inserted.ID, Job: inserted})
	if !inserted.NextRunAt.After(now) {
		s.poller.Kick()
	}
	return inserted, nil
}

// Schedule registers (or idempotently re-registers) a recurring job. cron
// is validated up front and fails with *InvalidCronError.
func (s *Scheduler) Schedule(ctx context.Context, cron, name string, data any, opts ScheduleOptions) (*Job, error) {
	if err := cronx.Validate(cron); err != nil {
		return nil, &InvalidCronError{Expression: cron, Err: err}
	}

	raw, err := marshalData(data)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	next, err := cronx.Next(cron, now)
	if err != nil {
		return nil, &InvalidCronError{Expression: cron, Err: err}
	}

	uniqueKey := opts.UniqueKey
	if uniqueKey == "" {
		uniqueKey = fingerprint(name, cron)
	}

	job := &model.Job{
		Name:           name,
		Data:           raw,
		NextRunAt:      next,
		RepeatInterval: cron,
		UniqueKey:      uniqueKey,
	}

	inserted, err := s.store.Insert(ctx, job)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	s.bus.Emit(events.Event{Name: events.JobEnqueued, JobID: inserted.ID, Job: inserted})
	return inserted, nil
}

// Worker registers handler for name. If a handler already exists for name
// and opts.Replace is false, it fails with *WorkerRegistrationError.
// Registration is an in-memory act of this instance only.
func (s *Scheduler) Worker(name string, handler Handler, opts WorkerOptions) error {
	err := s.registry.Register(name, handler, engine.RegisterOptions{
		Replace:     opts.Replace,
		Concurrency: opts.Concurrency,
	})
	if err != nil {
		var already *engine.AlreadyRegisteredError
		if errors.As(err, &already) {
			return &WorkerRegistrationError{Name: already.Name}
		}
		return err
	}
	return nil
}

// Cancel transitions a pending job to cancelled. Fails with *NotFoundError
// if id does not exist. Cancelling a job already in flight is a no-op;
// per spec.md 3, processing -> cancelled is forbidden.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	ok, err := s.store.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{JobID: id}
		}
		return &ConnectionError{Err: err}
	}
	if ok {
		s.bus.Emit(events.Event{Name: events.JobCancelled, JobID: id})
	}
	return nil
}

// GetJobs returns one keyset-paginated page of jobs matching filter. A
// malformed page.Cursor fails with *InvalidCursorError rather than
// *ConnectionError.
func (s *Scheduler) GetJobs(ctx context.Context, filter Filter, page Page) (PageResult, error) {
	result, err := s.store.Query(ctx, filter, page)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return PageResult{}, &InvalidCursorError{Reason: err.Error()}
		}
		return PageResult{}, &ConnectionError{Err: err}
	}
	return result, nil
}

// On registers handler for every event named name. See EventName for the
// full set.
func (s *Scheduler) On(name EventName, handler EventHandler) {
	s.bus.On(name, handler)
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("monque: marshal job data: %w", err)
	}
	return raw, nil
}

// fingerprint derives Schedule's default UniqueKey from (name, cron) so
// re-registering the same recurring job does not duplicate the series,
// per spec.md 4.11.
func fingerprint(name, cron string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + cron))
	return hex.EncodeToString(sum[:])
}
