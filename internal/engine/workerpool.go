package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaysched/monque/internal/backoff"
	"github.com/relaysched/monque/internal/cronx"
	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/runctx"
	"github.com/relaysched/monque/internal/store"
)

// errNoHandler is the failReason recorded when a job's name has no
// registered handler, per spec.md 4.7 step 1.
const errNoHandler = "no handler"

type inflight struct {
	job    *model.Job
	cancel context.CancelFunc
}

// WorkerPool is the bounded-concurrency executor that runs handlers and
// reports outcomes, grounded on the teacher's worker.go goroutine-per-job
// dispatch with a sync.WaitGroup, generalized to a global semaphore plus
// an optional per-name semaphore (the handlerSemaphore pattern in
// other_examples' workerutil.Worker).
type WorkerPool struct {
	registry     *Registry
	store        store.Store
	bus          *events.Bus
	logger       *slog.Logger
	instanceID   string
	maxRetries   int
	baseRetry    time.Duration
	maxBackoff   time.Duration
	concurrency  int

	mu       sync.Mutex
	inFlight map[string]*inflight
	wg       sync.WaitGroup
}

func NewWorkerPool(registry *Registry, st store.Store, bus *events.Bus, logger *slog.Logger, instanceID string, concurrency, maxRetries int, baseRetry, maxBackoff time.Duration) *WorkerPool {
	return &WorkerPool{
		registry:    registry,
		store:       st,
		bus:         bus,
		logger:      logger.With("component", "worker_pool"),
		instanceID:  instanceID,
		maxRetries:  maxRetries,
		baseRetry:   baseRetry,
		maxBackoff:  maxBackoff,
		concurrency: concurrency,
		inFlight:    make(map[string]*inflight),
	}
}

// AvailableSlots returns how many more jobs this instance can take on,
// used by the poller to size its next claimBatch call.
func (p *WorkerPool) AvailableSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.concurrency - len(p.inFlight)
	if n < 0 {
		return 0
	}
	return n
}

// InFlightIDs returns the ids this instance currently owns, used by the
// heartbeat service to extend leases in one batch call.
func (p *WorkerPool) InFlightIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.inFlight))
	for id := range p.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// CancelJob aborts the in-flight job id cooperatively; the handler
// observes ctx.Done(). Used when a heartbeat discovers its lease was
// stolen.
func (p *WorkerPool) CancelJob(id string) {
	p.mu.Lock()
	job, ok := p.inFlight[id]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.logger.Warn("lease lost, cancelling job", "job_id", id)
	job.cancel()
}

// Dispatch runs job in its own goroutine, claimed as owned by this pool
// until its terminal store update completes.
func (p *WorkerPool) Dispatch(job *model.Job) {
	jobCtx, cancel := context.WithCancel(context.Background())
	jobCtx = runctx.WithJobID(jobCtx, job.ID)
	jobCtx = runctx.WithInstanceID(jobCtx, p.instanceID)

	p.mu.Lock()
	p.inFlight[job.ID] = &inflight{job: job, cancel: cancel}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, job.ID)
			p.mu.Unlock()
		}()
		p.run(jobCtx, job)
	}()
}

// Wait blocks until every in-flight job finishes or ctx is done, whichever
// comes first. Returns false if ctx expired first.
func (p *WorkerPool) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *WorkerPool) run(ctx context.Context, job *model.Job) {
	handler, sem, ok := p.registry.Lookup(job.Name)
	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return
		}
	}

	p.bus.Emit(events.Event{Name: events.JobStarted, JobID: job.ID, Job: job})
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	start := time.Now()
	var handlerErr error
	if !ok {
		handlerErr = errors.New(errNoHandler)
	} else {
		handlerErr = p.invoke(ctx, handler, job)
	}
	duration := time.Since(start)

	if handlerErr == nil {
		p.complete(ctx, job, duration)
		return
	}
	p.fail(ctx, job, handlerErr, duration)
}

func (p *WorkerPool) invoke(ctx context.Context, h HandlerFunc, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job.Data, job)
}

func (p *WorkerPool) complete(ctx context.Context, job *model.Job, duration time.Duration) {
	now := time.Now()

	if job.Recurring() {
		next, err := cronx.Next(job.RepeatInterval, now)
		if err != nil {
			// Validated at schedule time; should not happen in practice.
			p.logger.Error("recompute next fire", "job_id", job.ID, "cron", job.RepeatInterval, "error", err)
			next = now.Add(p.baseRetry)
		}
		ok, err := p.store.CompleteRecurring(ctx, p.instanceID, job.ID, next, "", now)
		if err != nil {
			p.logger.Error("complete recurring", "job_id", job.ID, "error", err)
			p.bus.Emit(events.Event{Name: events.SchedulerError, JobID: job.ID, Err: err})
			return
		}
		if !ok {
			p.logger.Warn("complete recurring: lease lost", "job_id", job.ID)
			return
		}
	} else {
		ok, err := p.store.CompleteSuccess(ctx, p.instanceID, job.ID, now)
		if err != nil {
			p.logger.Error("complete success", "job_id", job.ID, "error", err)
			p.bus.Emit(events.Event{Name: events.SchedulerError, JobID: job.ID, Err: err})
			return
		}
		if !ok {
			p.logger.Warn("complete success: lease lost", "job_id", job.ID)
			return
		}
	}

	metrics.JobExecutionDuration.WithLabelValues(job.Name, "completed").Observe(duration.Seconds())
	metrics.JobsCompletedTotal.WithLabelValues(job.Name, "completed").Inc()
	p.bus.Emit(events.Event{Name: events.JobCompleted, JobID: job.ID, Job: job})
}

func (p *WorkerPool) fail(ctx context.Context, job *model.Job, handlerErr error, duration time.Duration) {
	now := time.Now()
	reason := handlerErr.Error()
	metrics.JobExecutionDuration.WithLabelValues(job.Name, "failed").Observe(duration.Seconds())

	// A recurring job never terminates via completeFail: the series
	// always re-enters pending, either at the backoff retry instant or at
	// its next cron fire, whichever is earlier, per spec.md 4.7 step 5. The
	// cron-vs-retry comparison only applies while the retry budget is not
	// yet exhausted; once it is, the cron fire is all that's left.
	if job.Recurring() {
		next, err := cronx.Next(job.RepeatInterval, now)
		if err != nil {
			// Validated at schedule time; should not happen in practice.
			p.logger.Error("recompute next fire after failure", "job_id", job.ID, "cron", job.RepeatInterval, "error", err)
			next = now.Add(p.baseRetry)
		}
		if job.FailCount+1 < p.maxRetries {
			if retryAt := backoff.NextRunAt(now, job.FailCount, p.baseRetry, p.maxBackoff); retryAt.Before(next) {
				next = retryAt
			}
		}

		ok, err := p.store.CompleteRecurring(ctx, p.instanceID, job.ID, next, reason, now)
		if err != nil {
			p.logger.Error("complete recurring (after failure)", "job_id", job.ID, "error", err)
			p.bus.Emit(events.Event{Name: events.SchedulerError, JobID: job.ID, Err: err})
			return
		}
		if !ok {
			p.logger.Warn("complete recurring (after failure): lease lost", "job_id", job.ID)
			return
		}
		metrics.JobsCompletedTotal.WithLabelValues(job.Name, "retry").Inc()
		p.bus.Emit(events.Event{Name: events.JobRetry, JobID: job.ID, Job: job, Err: handlerErr})
		return
	}

	if job.FailCount+1 < p.maxRetries {
		retryAt := backoff.NextRunAt(now, job.FailCount, p.baseRetry, p.maxBackoff)
		ok, err := p.store.CompleteRetry(ctx, p.instanceID, job.ID, retryAt, reason, now)
		if err != nil {
			p.logger.Error("complete retry", "job_id", job.ID, "error", err)
			p.bus.Emit(events.Event{Name: events.SchedulerError, JobID: job.ID, Err: err})
			return
		}
		if !ok {
			p.logger.Warn("complete retry: lease lost", "job_id", job.ID)
			return
		}
		metrics.JobsCompletedTotal.WithLabelValues(job.Name, "retry").Inc()
		p.bus.Emit(events.Event{Name: events.JobRetry, JobID: job.ID, Job: job, Err: handlerErr})
		return
	}

	ok, err := p.store.CompleteFail(ctx, p.instanceID, job.ID, reason, now)
	if err != nil {
		p.logger.Error("complete fail", "job_id", job.ID, "error", err)
		p.bus.Emit(events.Event{Name: events.SchedulerError, JobID: job.ID, Err: err})
		return
	}
	if !ok {
		p.logger.Warn("complete fail: lease lost", "job_id", job.ID)
		return
	}
	metrics.JobsCompletedTotal.WithLabelValues(job.Name, "failed").Inc()
	p.bus.Emit(events.Event{Name: events.JobFailed, JobID: job.ID, Job: job, Err: handlerErr})
}
