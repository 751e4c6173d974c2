package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaysched/monque/internal/engine"
	"github.com/relaysched/monque/internal/events"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestPollerClaimsAndDispatchesToHandler(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	registry := engine.NewRegistry()
	logger := discardLogger()

	executed := make(chan string, 1)
	err := registry.Register("greet", func(_ context.Context, data json.RawMessage, job *model.Job) error {
		executed <- job.ID
		return nil
	}, engine.RegisterOptions{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	pool := engine.NewWorkerPool(registry, st, bus, logger, "instance-a", 5, 3, time.Millisecond, time.Second)
	poller := engine.NewPoller(st, pool, bus, logger, "instance-a", 10*time.Millisecond, time.Minute)

	job, err := st.Insert(context.Background(), &model.Job{Name: "greet", Data: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Start(ctx)

	select {
	case id := <-executed:
		if id != job.ID {
			t.Fatalf("expected job %s executed, got %s", job.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	waitFor(t, time.Second, func() bool {
		got, err := st.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == model.StatusCompleted
	})
}

func TestWorkerPoolNoHandlerRetriesThenFails(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	registry := engine.NewRegistry()
	logger := discardLogger()

	pool := engine.NewWorkerPool(registry, st, bus, logger, "instance-a", 5, 2, time.Millisecond, time.Millisecond)

	job, err := st.Insert(context.Background(), &model.Job{Name: "missing"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	claimed, err := st.ClaimBatch(context.Background(), "instance-a", 1, time.Now(), time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	pool.Dispatch(claimed[0])
	waitFor(t, time.Second, func() bool {
		got, _ := st.GetByID(context.Background(), job.ID)
		return got != nil && got.Status == model.StatusPending && got.FailCount == 1
	})

	claimed, err = st.ClaimBatch(context.Background(), "instance-a", 1, time.Now().Add(time.Second), time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("second claim: %v %v", claimed, err)
	}
	pool.Dispatch(claimed[0])
	waitFor(t, time.Second, func() bool {
		got, _ := st.GetByID(context.Background(), job.ID)
		return got != nil && got.Status == model.StatusFailed
	})
}

func TestHeartbeatCancelsJobWhenLeaseNoLongerOwned(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	registry := engine.NewRegistry()
	logger := discardLogger()

	cancelled := make(chan struct{})
	registry.Register("slow", func(ctx context.Context, _ json.RawMessage, _ *model.Job) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, engine.RegisterOptions{})

	pool := engine.NewWorkerPool(registry, st, bus, logger, "instance-a", 5, 3, time.Millisecond, time.Second)
	hb := engine.NewHeartbeat(st, pool, logger, "instance-a", 10*time.Millisecond)

	_, err := st.Insert(context.Background(), &model.Job{Name: "slow"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	claimed, err := st.ClaimBatch(context.Background(), "instance-a", 1, time.Now(), time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v %v", claimed, err)
	}
	job := claimed[0]
	pool.Dispatch(job)

	waitFor(t, time.Second, func() bool {
		return len(pool.InFlightIDs()) == 1
	})

	// Simulate recovery reclaiming the lease while the handler is still
	// running: the job leaves StatusProcessing out from under the pool.
	if ok, err := st.CompleteFail(context.Background(), "instance-a", job.ID, "lease reclaimed", time.Now()); err != nil || !ok {
		t.Fatalf("force reclaim: ok=%v err=%v", ok, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hb.Start(ctx)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("lost lease did not cancel job")
	}
}

func TestRecoveryEmitsEventsForStaleJobs(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	logger := discardLogger()

	var rec recordedEvents
	bus.On(events.JobRecovered, rec.record)
	bus.On(events.JobFailed, rec.record)

	job, err := st.Insert(context.Background(), &model.Job{Name: "job"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := st.ClaimBatch(context.Background(), "instance-a", 1, time.Now(), time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	recovery := engine.NewRecovery(st, bus, logger, time.Millisecond, 3)
	// Give the claimed lease time to age past the 1ms lease timeout before
	// the recovery loop's first tick fires.
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go recovery.Start(ctx)
	defer cancel()

	waitFor(t, time.Second, func() bool {
		got, err := st.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == model.StatusPending
	})
	waitFor(t, time.Second, func() bool {
		return rec.count() > 0
	})
}

func TestRetentionDeletesOldTerminalJobs(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	logger := discardLogger()

	job, err := st.Insert(context.Background(), &model.Job{Name: "job"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := st.ClaimBatch(context.Background(), "instance-a", 1, time.Now(), time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Completed an hour ago, outside the 10-minute failedTTL window below.
	if ok, err := st.CompleteFail(context.Background(), "instance-a", job.ID, "boom", time.Now().Add(-time.Hour)); err != nil || !ok {
		t.Fatalf("complete fail: ok=%v err=%v", ok, err)
	}

	retention := engine.NewRetention(st, bus, logger, 10*time.Millisecond, 0, 10*time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go retention.Start(ctx)

	waitFor(t, time.Second, func() bool {
		_, err := st.GetByID(context.Background(), job.ID)
		return err != nil
	})
}

func TestRecurringJobRetriesNeverTerminateTheSeries(t *testing.T) {
	st := memstore.New()
	bus := events.NewBus()
	registry := engine.NewRegistry()
	logger := discardLogger()

	var attempts int32
	registry.Register("tick", func(context.Context, json.RawMessage, *model.Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, engine.RegisterOptions{})

	// maxRetries=1 means the very first handler failure exhausts the retry
	// budget; a non-recurring job would go straight to StatusFailed.
	pool := engine.NewWorkerPool(registry, st, bus, logger, "instance-a", 5, 1, time.Millisecond, time.Millisecond)

	job, err := st.Insert(context.Background(), &model.Job{Name: "tick", RepeatInterval: "*/5 * * * *"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	claimed, err := st.ClaimBatch(context.Background(), "instance-a", 1, time.Now(), time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	pool.Dispatch(claimed[0])
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&attempts) == 1
	})
	waitFor(t, time.Second, func() bool {
		got, err := st.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == model.StatusPending
	})

	got, err := st.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected a failing recurring job to re-enter pending, got %s", got.Status)
	}
	if got.FailReason != "boom" {
		t.Fatalf("expected fail reason to be recorded, got %q", got.FailReason)
	}
}

type recordedEvents struct {
	mu sync.Mutex
	n  int
}

func (r *recordedEvents) record(events.Event) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *recordedEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
