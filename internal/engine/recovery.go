package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/store"
)

// recoveryBatchSize bounds a single recovery sweep, matching the teacher's
// reaper.go's fixed 100-row batches for RescheduleStale/FailStale.
const recoveryBatchSize = 100

// Recovery detects jobs whose lease has expired and returns them to the
// runnable set, grounded directly on the teacher's reaper.go, generalized
// from its two-phase RescheduleStale/FailStale split to the single
// recoverStale store operation spec.md 4.9 defines (which folds the
// failCount>=maxRetries branch into one call).
type Recovery struct {
	store        store.Store
	bus          *events.Bus
	logger       *slog.Logger
	leaseTimeout time.Duration
	maxRetries   int
}

func NewRecovery(st store.Store, bus *events.Bus, logger *slog.Logger, leaseTimeout time.Duration, maxRetries int) *Recovery {
	return &Recovery{
		store:        st,
		bus:          bus,
		logger:       logger.With("component", "recovery"),
		leaseTimeout: leaseTimeout,
		maxRetries:   maxRetries,
	}
}

// Start runs the recovery loop at leaseTimeout intervals, per spec.md 4.9
// ("Periodic task (interval = leaseTimeout)").
func (r *Recovery) Start(ctx context.Context) {
	ticker := time.NewTicker(r.leaseTimeout)
	defer ticker.Stop()

	r.logger.Info("recovery started", "interval", r.leaseTimeout)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("recovery shut down")
			return
		case <-ticker.C:
			r.recover(ctx)
		}
	}
}

func (r *Recovery) recover(ctx context.Context) {
	start := time.Now()
	recovered, err := r.store.RecoverStale(ctx, start, r.leaseTimeout, r.maxRetries, recoveryBatchSize)
	metrics.RecoveryCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("recover stale", "error", err)
		r.bus.Emit(events.Event{Name: events.SchedulerError, Err: err})
		return
	}
	if len(recovered) == 0 {
		return
	}

	r.logger.Info("recovered stale jobs", "count", len(recovered))
	for _, rec := range recovered {
		if rec.MovedToFail {
			metrics.RecoveryRescuedTotal.WithLabelValues("failed").Inc()
			r.bus.Emit(events.Event{Name: events.JobFailed, JobID: rec.ID})
			continue
		}
		metrics.RecoveryRescuedTotal.WithLabelValues("rescheduled").Inc()
		r.bus.Emit(events.Event{Name: events.JobRecovered, JobID: rec.ID})
	}
}
