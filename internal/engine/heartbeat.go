package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaysched/monque/internal/store"
)

// Heartbeat periodically extends the lease of every job this instance
// currently has in flight, grounded on the teacher's per-job heartbeat
// goroutine in worker.go, generalized to a single batch call across all
// owned ids per spec.md 4.8 ("the worker pool is notified to cancel that
// job" when a heartbeat finds its lease stolen).
type Heartbeat struct {
	store      store.Store
	pool       *WorkerPool
	logger     *slog.Logger
	instanceID string
	interval   time.Duration
}

func NewHeartbeat(st store.Store, pool *WorkerPool, logger *slog.Logger, instanceID string, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		store:      st,
		pool:       pool,
		logger:     logger.With("component", "heartbeat"),
		instanceID: instanceID,
		interval:   interval,
	}
}

func (h *Heartbeat) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("heartbeat started", "interval", h.interval)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat shut down")
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	ids := h.pool.InFlightIDs()
	if len(ids) == 0 {
		return
	}

	stolen, err := h.store.Heartbeat(ctx, h.instanceID, ids, time.Now())
	if err != nil {
		h.logger.Error("heartbeat update", "error", err)
		return
	}
	for _, id := range stolen {
		h.pool.CancelJob(id)
	}
}
