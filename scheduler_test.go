package monque

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

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

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	st := memstore.New()
	sched := newScheduler(st, Options{
		Logger:       discardLogger(),
		PollInterval: 10 * time.Millisecond,
		LockTimeout:  100 * time.Millisecond,
	})
	if err := sched.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return sched
}

func TestEnqueueIsIdempotentOnUniqueKey(t *testing.T) {
	sched := newTestScheduler(t)

	first, err := sched.Enqueue(context.Background(), "send-email", map[string]string{"to": "a@example.com"}, EnqueueOptions{UniqueKey: "welcome-1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := sched.Enqueue(context.Background(), "send-email", map[string]string{"to": "b@example.com"}, EnqueueOptions{UniqueKey: "welcome-1"})
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected idempotent enqueue to return the same job, got %s and %s", first.ID, second.ID)
	}
}

func TestScheduleIsIdempotentForTheSameCronSeries(t *testing.T) {
	sched := newTestScheduler(t)

	first, err := sched.Schedule(context.Background(), "*/5 * * * *", "nightly-report", nil, ScheduleOptions{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	second, err := sched.Schedule(context.Background(), "*/5 * * * *", "nightly-report", nil, ScheduleOptions{})
	if err != nil {
		t.Fatalf("schedule again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected re-registering the same recurring job to be a no-op, got %s and %s", first.ID, second.ID)
	}
}

func TestScheduleRejectsInvalidCron(t *testing.T) {
	sched := newTestScheduler(t)

	_, err := sched.Schedule(context.Background(), "not a cron expression", "job", nil, ScheduleOptions{})
	var invalidCron *InvalidCronError
	if !errors.As(err, &invalidCron) {
		t.Fatalf("expected *InvalidCronError, got %v (%T)", err, err)
	}
}

func TestWorkerDuplicateRegistrationFails(t *testing.T) {
	sched := newTestScheduler(t)
	noop := func(context.Context, json.RawMessage, *Job) error { return nil }

	if err := sched.Worker("send-email", noop, WorkerOptions{}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	err := sched.Worker("send-email", noop, WorkerOptions{})
	var already *WorkerRegistrationError
	if !errors.As(err, &already) {
		t.Fatalf("expected *WorkerRegistrationError, got %v (%T)", err, err)
	}
	if already.Name != "send-email" {
		t.Fatalf("expected error to name send-email, got %q", already.Name)
	}

	if err := sched.Worker("send-email", noop, WorkerOptions{Replace: true}); err != nil {
		t.Fatalf("replace registration: %v", err)
	}
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	sched := newTestScheduler(t)

	err := sched.Cancel(context.Background(), "does-not-exist")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %v (%T)", err, err)
	}
}

func TestStopWithNoInFlightWorkReturnsImmediately(t *testing.T) {
	sched := newTestScheduler(t)
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sched.Stop(0) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stop with no in-flight work should not block on ShutdownTimeout")
	}
}

func TestEnqueueExecutesThroughWorkerAfterStart(t *testing.T) {
	sched := newTestScheduler(t)

	done := make(chan struct{})
	err := sched.Worker("ping", func(context.Context, json.RawMessage, *Job) error {
		close(done)
		return nil
	}, WorkerOptions{})
	if err != nil {
		t.Fatalf("register worker: %v", err)
	}

	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(time.Second)

	if _, err := sched.Enqueue(context.Background(), "ping", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran after enqueue")
	}
}

func TestOnSubscribesToJobLifecycleEvents(t *testing.T) {
	sched := newTestScheduler(t)

	seen := make(chan EventName, 4)
	sched.On(EventJobEnqueued, func(ev Event) { seen <- ev.Name })
	sched.On(EventJobCompleted, func(ev Event) { seen <- ev.Name })

	err := sched.Worker("noop", func(context.Context, json.RawMessage, *Job) error { return nil }, WorkerOptions{})
	if err != nil {
		t.Fatalf("register worker: %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop(time.Second)

	if _, err := sched.Enqueue(context.Background(), "noop", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	names := map[EventName]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-seen:
			names[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, saw %v", names)
		}
	}
	if !names[EventJobEnqueued] || !names[EventJobCompleted] {
		t.Fatalf("expected enqueued and completed events, got %v", names)
	}
}

func TestGetJobsFiltersByName(t *testing.T) {
	sched := newTestScheduler(t)

	if _, err := sched.Enqueue(context.Background(), "a", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if _, err := sched.Enqueue(context.Background(), "b", nil, EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}

	result, err := sched.GetJobs(context.Background(), Filter{Name: "a"}, Page{Limit: 10})
	if err != nil {
		t.Fatalf("get jobs: %v", err)
	}
	if len(result.Jobs) != 1 || result.Jobs[0].Name != "a" {
		t.Fatalf("expected exactly one job named a, got %+v", result.Jobs)
	}
}

func TestGetJobsWithMalformedCursorReturnsInvalidCursorError(t *testing.T) {
	sched := newTestScheduler(t)

	_, err := sched.GetJobs(context.Background(), Filter{}, Page{Cursor: "not-a-valid-cursor"})
	var invalidCursor *InvalidCursorError
	if !errors.As(err, &invalidCursor) {
		t.Fatalf("expected *InvalidCursorError, got %v (%T)", err, err)
	}
}

func TestGetJobsPaginatesWithCursor(t *testing.T) {
	sched := newTestScheduler(t)

	for i := 0; i < 3; i++ {
		if _, err := sched.Enqueue(context.Background(), "paged", nil, EnqueueOptions{}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	first, err := sched.GetJobs(context.Background(), Filter{Name: "paged"}, Page{Limit: 2})
	if err != nil {
		t.Fatalf("get first page: %v", err)
	}
	if len(first.Jobs) != 2 {
		t.Fatalf("expected 2 jobs on first page, got %d", len(first.Jobs))
	}
	if first.NextCursor == "" {
		t.Fatal("expected a NextCursor since a third job remains")
	}

	second, err := sched.GetJobs(context.Background(), Filter{Name: "paged"}, Page{Limit: 2, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("get second page: %v", err)
	}
	if len(second.Jobs) != 1 {
		t.Fatalf("expected 1 remaining job on second page, got %d", len(second.Jobs))
	}
	for _, j := range first.Jobs {
		if j.ID == second.Jobs[0].ID {
			t.Fatalf("second page repeated job %s from first page", j.ID)
		}
	}
}
