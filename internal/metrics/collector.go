// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every Prometheus metric the gateway emits.
type Collector struct {
	// Wire + control-plane HTTP metrics.
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Per-provider request metrics.
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	providerTokensUsed      *prometheus.CounterVec

	// Routing and failover metrics.
	routingDecisionsTotal *prometheus.CounterVec
	failoverAttemptsTotal *prometheus.CounterVec

	// HealthSupervisor state-machine metrics.
	healthStateTransitionsTotal *prometheus.CounterVec
	circuitOpenTotal            *prometheus.CounterVec

	// RateLimiter admission metrics.
	rateLimitAllowedTotal  *prometheus.CounterVec
	rateLimitRejectedTotal *prometheus.CounterVec

	// Streaming metrics (response body streamed to the client).
	streamBytesTotal   *prometheus.CounterVec
	streamChunksTotal  *prometheus.CounterVec
	streamFlushesTotal *prometheus.CounterVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector registers every metric under namespace and returns the Collector.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of requests dispatched to a backend provider",
		},
		[]string{"provider", "model", "status"},
	)

	c.providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Backend provider request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.providerTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Total number of tokens exchanged with a backend provider",
		},
		[]string{"provider", "model", "direction"}, // direction: input, output
	)

	c.routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of provider selections made by the selector",
		},
		[]string{"strategy", "provider"},
	)

	c.failoverAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failover_attempts_total",
			Help:      "Total number of failover attempts, including the first try",
		},
		[]string{"provider", "outcome"}, // outcome: success, a failover class name, or no_eligible_provider
	)

	c.healthStateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_state_transitions_total",
			Help:      "Total number of HealthSupervisor state transitions",
		},
		[]string{"provider", "from_state", "to_state"},
	)

	c.circuitOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_open_total",
			Help:      "Total number of times a provider's circuit breaker tripped open",
		},
		[]string{"provider"},
	)

	c.rateLimitAllowedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_allowed_total",
			Help:      "Total number of requests admitted by the rate limiter",
		},
		[]string{"provider"},
	)

	c.rateLimitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"provider"},
	)

	c.streamBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Total number of response body bytes streamed to clients",
		},
		[]string{"provider"},
	)

	c.streamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of SSE chunks streamed to clients",
		},
		[]string{"provider"},
	)

	c.streamFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_flushes_total",
			Help:      "Total number of http.Flusher.Flush calls issued while streaming",
		},
		[]string{"provider"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one completed control-plane or wire HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordProviderRequest records one completed call to a backend provider.
func (c *Collector) RecordProviderRequest(provider, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	c.providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.providerRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.providerTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	c.providerTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

// RecordRoutingDecision records which provider a selection strategy chose.
func (c *Collector) RecordRoutingDecision(strategy, provider string) {
	c.routingDecisionsTotal.WithLabelValues(strategy, provider).Inc()
}

// RecordFailoverAttempt records the outcome of one failover attempt against provider.
func (c *Collector) RecordFailoverAttempt(provider, outcome string) {
	c.failoverAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordHealthStateTransition records a HealthSupervisor state transition for provider.
func (c *Collector) RecordHealthStateTransition(provider, fromState, toState string) {
	c.healthStateTransitionsTotal.WithLabelValues(provider, fromState, toState).Inc()
}

// RecordCircuitOpen records that provider's circuit breaker tripped open.
func (c *Collector) RecordCircuitOpen(provider string) {
	c.circuitOpenTotal.WithLabelValues(provider).Inc()
}

// RecordRateLimitAllowed records one request admitted by the rate limiter.
func (c *Collector) RecordRateLimitAllowed(provider string) {
	c.rateLimitAllowedTotal.WithLabelValues(provider).Inc()
}

// RecordRateLimitRejected records one request rejected by the rate limiter.
func (c *Collector) RecordRateLimitRejected(provider string) {
	c.rateLimitRejectedTotal.WithLabelValues(provider).Inc()
}

// RecordStreamChunk records one SSE chunk of size bytes streamed for provider.
func (c *Collector) RecordStreamChunk(provider string, bytes int) {
	c.streamBytesTotal.WithLabelValues(provider).Add(float64(bytes))
	c.streamChunksTotal.WithLabelValues(provider).Inc()
}

// RecordStreamFlush records one http.Flusher.Flush call for provider.
func (c *Collector) RecordStreamFlush(provider string) {
	c.streamFlushesTotal.WithLabelValues(provider).Inc()
}

// statusCode buckets an HTTP status code into its class, e.g. 404 -> "4xx".
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
