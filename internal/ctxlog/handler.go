// Package ctxlog wraps an slog.Handler to enrich every log record with
// correlation ids pulled from the context, grounded on the teacher's
// internal/log.ContextHandler (which injects request_id). This port injects
// job_id and scheduler instance_id instead, since there is no inbound HTTP
// request to correlate.
package ctxlog

import (
	"context"
	"log/slog"

	"github.com/relaysched/monque/internal/runctx"
)

// ContextHandler wraps an inner slog.Handler and automatically extracts
// job_id and instance_id from the context of each log record.
type ContextHandler struct {
	inner slog.Handler
}

// NewContextHandler returns a handler that enriches every record with
// context values before delegating to inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := runctx.JobID(ctx); id != "" {
		r.AddAttrs(slog.String("job_id", id))
	}
	if id := runctx.InstanceID(ctx); id != "" {
		r.AddAttrs(slog.String("instance_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
