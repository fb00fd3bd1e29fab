package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for the trace ID of one request
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the correlation token the host sent
	RequestIDKey ContextKey = "request_id"
	// PluginKey is the context key for the plugin a request addresses
	PluginKey ContextKey = "plugin"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RequestID string
	Plugin    string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds the host's correlation token to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPlugin adds the addressed plugin key to the context
func WithPlugin(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, PluginKey, key)
}

func value(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return value(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return value(ctx, RequestIDKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RequestID: GetRequestID(ctx),
		Plugin:    value(ctx, PluginKey),
	}
}

// NewRequestContext starts a trace for one host request. requestID is the raw
// id token, empty when the request carried none.
func NewRequestContext(ctx context.Context, requestID, plugin string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	if requestID != "" {
		ctx = WithRequestID(ctx, requestID)
	}
	if plugin != "" {
		ctx = WithPlugin(ctx, plugin)
	}
	return ctx
}

// Logger adds the tracing fields found in ctx to logger
func Logger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	if tc.Plugin != "" {
		lc = lc.Str("plugin", tc.Plugin)
	}
	return lc.Logger()
}
