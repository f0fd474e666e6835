// Package ctxkeys holds request-scoped context values that are internal to
// the gateway pipeline and do not belong on the wire-level canonical types.
package ctxkeys

import "context"

type contextKey string

const (
	attemptKey          contextKey = "attempt"
	providerOverrideKey contextKey = "provider_override"
	correlationIDKey    contextKey = "correlation_id"
)

// WithAttempt records the 1-based attempt number a failover retry is on.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt returns the attempt number set by WithAttempt, defaulting to 1.
func Attempt(ctx context.Context) int {
	v, ok := ctx.Value(attemptKey).(int)
	if !ok || v < 1 {
		return 1
	}
	return v
}

// WithProviderOverride pins a request to a specific provider id, bypassing
// the selector. Used by the /test diagnostic endpoint.
func WithProviderOverride(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, providerOverrideKey, providerID)
}

// ProviderOverride returns the pinned provider id, if any.
func ProviderOverride(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(providerOverrideKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithCorrelationID stamps the request-scoped id GatewayCore assigns at
// ingress and carries through classification, selection, invocation, and the
// response/error envelope.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "" if none was set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
