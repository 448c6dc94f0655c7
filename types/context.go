package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID       contextKey = "trace_id"
	keyRunID         contextKey = "run_id"
	keyParticipantID contextKey = "participant_id"
	keyRequestID     contextKey = "request_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithParticipantID adds the local participant ID to context.
func WithParticipantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyParticipantID, id)
}

// ParticipantID extracts the participant ID from context.
func ParticipantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyParticipantID).(string)
	return v, ok && v != ""
}

// WithRequestID adds the HTTP request ID to context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// RequestID extracts the HTTP request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}
