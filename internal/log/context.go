// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{ name string }

var (
	requestIDKey = ctxKey{FieldRequestID}
	flowKey      = ctxKey{FieldFlow}
)

// ContextWithRequestID stores the HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// ContextWithFlow tags ctx with the session flow (new_game, continue_game,
// exit) that started the work. Sync operations run on behalf of a flow log it.
func ContextWithFlow(ctx context.Context, flow string) context.Context {
	return withValue(ctx, flowKey, flow)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// FlowFromContext returns the session flow, or "".
func FlowFromContext(ctx context.Context) string {
	return stringValue(ctx, flowKey)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithContext adds the request ID and flow carried by ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	rid, flow := RequestIDFromContext(ctx), FlowFromContext(ctx)
	if rid == "" && flow == "" {
		return logger
	}
	lc := logger.With()
	if rid != "" {
		lc = lc.Str(FieldRequestID, rid)
	}
	if flow != "" {
		lc = lc.Str(FieldFlow, flow)
	}
	return lc.Logger()
}

// WithComponentFromContext is WithComponent enriched from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
