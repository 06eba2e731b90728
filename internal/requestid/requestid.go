// Package requestid generates and propagates correlation IDs: plain request
// IDs on the management API, and dispatch IDs on outbound endpoint calls so
// a run can be traced from our logs into the target service's.
package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// Dispatch builds the X-Request-ID for one outbound endpoint dispatch. It
// embeds a prefix of the endpoint ID so the receiving service's access logs
// can be grepped per endpoint, with a fresh random tail per run.
func Dispatch(endpointID string) string {
	prefix := endpointID
	if i := strings.IndexByte(prefix, '-'); i > 0 {
		prefix = prefix[:i]
	}
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "ep-" + prefix + "-" + uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
