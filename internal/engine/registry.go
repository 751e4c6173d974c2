// Package engine hosts the background services that drive the claim,
// dispatch, heartbeat, recovery, and retention cycle, grounded on the
// teacher's internal/scheduler package (Dispatcher, Worker, Reaper)
// generalized from an HTTP-webhook dispatch loop to the generic
// claim/execute/complete lifecycle.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relaysched/monque/internal/model"
)

// HandlerFunc is the unit of work registered for a job name. It receives
// the job's opaque payload and the job record itself (for read-only
// access to retry metadata) and returns an error to signal failure.
type HandlerFunc func(ctx context.Context, data json.RawMessage, job *model.Job) error

// RegisterOptions configures a single Register call.
type RegisterOptions struct {
	// Replace allows overwriting a handler already registered for the
	// same name instead of failing.
	Replace bool
	// Concurrency bounds simultaneous executions of this handler name,
	// independent of the pool-wide cap. Zero means unbounded (subject
	// only to the pool-wide cap).
	Concurrency int
}

// AlreadyRegisteredError is returned by Register when name already has a
// handler and opts.Replace was not set.
type AlreadyRegisteredError struct {
	Name string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("engine: handler already registered for %q", e.Name)
}

type registration struct {
	handler HandlerFunc
	sem     chan struct{}
}

// Registry is a concurrency-safe name -> handler map, frozen for reads
// during dispatch and append-mostly for writes, grounded on the
// "handler registry is append-mostly and is frozen for reads during
// dispatch" design note.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register adds a handler for name, or fails with AlreadyRegisteredError.
func (r *Registry) Register(name string, h HandlerFunc, opts RegisterOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists && !opts.Replace {
		return &AlreadyRegisteredError{Name: name}
	}

	var sem chan struct{}
	if opts.Concurrency > 0 {
		sem = make(chan struct{}, opts.Concurrency)
	}
	r.handlers[name] = registration{handler: h, sem: sem}
	return nil
}

// Lookup returns the handler registered for name and its optional
// per-name semaphore, if any.
func (r *Registry) Lookup(name string) (HandlerFunc, chan struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[name]
	return reg.handler, reg.sem, ok
}
