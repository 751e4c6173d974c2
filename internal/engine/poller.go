package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/store"
)

// Poller is the single per-instance loop that drives claim -> dispatch,
// grounded on the teacher's dispatcher.go ticker loop and worker.go's
// processBatch, generalized with a buffered "kick" channel (spec.md 4.6)
// that the teacher's fixed-ticker dispatcher does not have — grounded
// instead on the immediate-wake idiom in other_examples' workerutil.Worker.
type Poller struct {
	store        store.Store
	pool         *WorkerPool
	bus          *events.Bus
	logger       *slog.Logger
	instanceID   string
	pollInterval time.Duration
	leaseTimeout time.Duration

	kick chan struct{}
}

func NewPoller(st store.Store, pool *WorkerPool, bus *events.Bus, logger *slog.Logger, instanceID string, pollInterval, leaseTimeout time.Duration) *Poller {
	return &Poller{
		store:        st,
		pool:         pool,
		bus:          bus,
		logger:       logger.With("component", "poller"),
		instanceID:   instanceID,
		pollInterval: pollInterval,
		leaseTimeout: leaseTimeout,
		kick:         make(chan struct{}, 1),
	}
}

// Kick collapses the next sleep to zero, used after a fresh enqueue to
// reduce dispatch latency. Safe to call before Start or concurrently.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.pollInterval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller shut down")
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.kick:
			p.tick(ctx)
			ticker.Reset(p.pollInterval)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	slots := p.pool.AvailableSlots()
	if slots == 0 {
		return
	}

	now := time.Now()
	claimed, err := p.store.ClaimBatch(ctx, p.instanceID, slots, now, p.leaseTimeout)
	if err != nil {
		p.logger.Error("claim batch", "error", err)
		p.bus.Emit(events.Event{Name: events.SchedulerError, Err: err})
		return
	}
	if len(claimed) == 0 {
		return
	}

	p.logger.Info("claimed jobs", "count", len(claimed))
	for _, job := range claimed {
		metrics.ClaimLatency.Observe(now.Sub(job.NextRunAt).Seconds())
		p.pool.Dispatch(job)
	}
}
