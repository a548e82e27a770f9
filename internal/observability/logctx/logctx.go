// Package logctx threads the request-scoped logger through context.Context
// so handlers, use cases and bus consumers all log with the same correlation
// fields (request id, trace id, event name) without passing a logger around.
package logctx

import (
	"context"

	"github.com/kitewave/orderflow/internal/observability"
)

type ctxKey struct{}

// With attaches logger to the context. A nil context or logger leaves the
// context unchanged.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger attached to the context, or nil when none is.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(ctxKey{}).(observability.Logger)
	return logger
}

// FromOr is From with a fallback, for call sites that must always log.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	return fallback
}
