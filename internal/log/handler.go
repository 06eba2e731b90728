package log

import (
	"context"
	"log/slog"

	"github.com/weskerllc/cronicorn/internal/requestid"
)

type endpointKey struct{}
type runKey struct{}

// WithEndpoint returns a copy of ctx carrying the endpoint being processed.
// Workers set this once per claim so every log line in the pipeline can be
// correlated to one endpoint without threading the id through each call.
func WithEndpoint(ctx context.Context, endpointID string) context.Context {
	return context.WithValue(ctx, endpointKey{}, endpointID)
}

// WithRun returns a copy of ctx carrying the run row being executed.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// ContextHandler wraps an slog.Handler and enriches every record with the
// correlation values carried in the context: request_id on the API side,
// endpoint_id and run_id on the worker side.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if id, ok := ctx.Value(endpointKey{}).(string); ok && id != "" {
		r.AddAttrs(slog.String("endpoint_id", id))
	}
	if id, ok := ctx.Value(runKey{}).(string); ok && id != "" {
		r.AddAttrs(slog.String("run_id", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
