package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const keyCorrelationID contextKey = "correlation_id"

// WithCorrelationID attaches a correlation id to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyCorrelationID, id)
}

// CorrelationID extracts the correlation id from ctx, if present.
func CorrelationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyCorrelationID).(string)
	return v, ok && v != ""
}
