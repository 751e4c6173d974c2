package monque

import "github.com/relaysched/monque/internal/events"

// EventName identifies a lifecycle/observability event emitted by a Scheduler.
type EventName = events.Name

const (
	EventJobEnqueued      = events.JobEnqueued
	EventJobStarted       = events.JobStarted
	EventJobCompleted     = events.JobCompleted
	EventJobFailed        = events.JobFailed
	EventJobRetry         = events.JobRetry
	EventJobCancelled     = events.JobCancelled
	EventJobRecovered     = events.JobRecovered
	EventJobDeleted       = events.JobDeleted
	EventSchedulerStarted = events.SchedulerStarted
	EventSchedulerStopped = events.SchedulerStopped
	EventSchedulerError   = events.SchedulerError
)

// Event is the payload delivered to subscribers. Which of JobID and Job are
// populated depends on the event (worker-pool events carry both); Err is
// set for scheduler:error and for job:retry/job:failed raised by a handler
// error.
type Event = events.Event

// EventHandler receives emitted events. Handlers run synchronously on the
// emitting goroutine and must not block.
type EventHandler = events.Handler
