// Package events is the in-process typed publish/subscribe hub shared by
// the engine's background services and the public facade, pulled out of
// the root package so internal/engine can emit events without importing
// it (the root package imports internal/engine, not the reverse).
package events

import (
	"sync"

	"github.com/relaysched/monque/internal/model"
)

// Name identifies a lifecycle/observability event emitted by a Scheduler.
type Name string

const (
	JobEnqueued      Name = "job:enqueued"
	JobStarted       Name = "job:started"
	JobCompleted     Name = "job:completed"
	JobFailed        Name = "job:failed"
	JobRetry         Name = "job:retry"
	JobCancelled     Name = "job:cancelled"
	JobRecovered     Name = "job:recovered"
	JobDeleted       Name = "job:deleted"
	SchedulerStarted Name = "scheduler:started"
	SchedulerStopped Name = "scheduler:stopped"
	SchedulerError   Name = "scheduler:error"
)

// Event is the payload delivered to subscribers. JobID and Job are
// populated depending on the event; Err is set for scheduler:error and for
// job:retry/job:failed raised by a handler error.
type Event struct {
	Name  Name
	JobID string
	Job   *model.Job
	Err   error
}

// Handler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(Event)

// Bus is an in-process, typed publish/subscribe hub. It intentionally has
// no cross-process delivery — that is the store's job, not the bus's.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Name][]Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[Name][]Handler)}
}

// On registers handler to be called for every event named name.
func (b *Bus) On(name Name, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], handler)
}

// Emit synchronously invokes every handler registered for ev.Name.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	handlers := b.subscribers[ev.Name]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}
