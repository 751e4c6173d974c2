package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/store"
)

// retentionBatchSize bounds a single deletion pass, matching the sibling
// services' fixed-batch idiom (recoveryBatchSize).
const retentionBatchSize = 100

// Retention periodically deletes terminal jobs older than configured
// thresholds. The teacher has no equivalent service; this is new relative
// to it, grounded on the same ticker-loop idiom as Poller/Heartbeat/
// Recovery (spec.md 4.10).
type Retention struct {
	store        store.Store
	bus          *events.Bus
	logger       *slog.Logger
	interval     time.Duration
	completedTTL time.Duration
	failedTTL    time.Duration
}

func NewRetention(st store.Store, bus *events.Bus, logger *slog.Logger, interval, completedTTL, failedTTL time.Duration) *Retention {
	return &Retention{
		store:        st,
		bus:          bus,
		logger:       logger.With("component", "retention"),
		interval:     interval,
		completedTTL: completedTTL,
		failedTTL:    failedTTL,
	}
}

// Start runs the retention sweep at the configured interval. A
// non-positive interval disables the service entirely, per spec.md 6
// ("jobRetention: ... interval (optional; ... default disabled)").
func (r *Retention) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("retention started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention shut down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	now := time.Now()
	if r.completedTTL > 0 {
		r.deleteOlderThan(ctx, model.StatusCompleted, now.Add(-r.completedTTL))
	}
	if r.failedTTL > 0 {
		r.deleteOlderThan(ctx, model.StatusFailed, now.Add(-r.failedTTL))
	}
}

func (r *Retention) deleteOlderThan(ctx context.Context, status model.Status, cutoff time.Time) {
	ids, err := r.store.DeleteTerminalOlderThan(ctx, status, cutoff, retentionBatchSize)
	if err != nil {
		r.logger.Error("delete terminal older than", "status", status, "error", err)
		r.bus.Emit(events.Event{Name: events.SchedulerError, Err: err})
		return
	}
	if len(ids) == 0 {
		return
	}

	r.logger.Info("retention deleted jobs", "status", status, "count", len(ids))
	metrics.RetentionDeletedTotal.WithLabelValues(string(status)).Add(float64(len(ids)))
	for _, id := range ids {
		r.bus.Emit(events.Event{Name: events.JobDeleted, JobID: id})
	}
}
