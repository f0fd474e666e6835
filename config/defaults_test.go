package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, RoutingPolicy{}, cfg.Routing)
	assert.NotEqual(t, ClassifierPolicy{}, cfg.Classifier)
	assert.NotEqual(t, FailoverPolicy{}, cfg.Failover)
	assert.NotEqual(t, CircuitBreakerPolicy{}, cfg.CircuitBreaker)
	assert.NotEqual(t, DeadlinePolicy{}, cfg.Deadlines)
	assert.NotEqual(t, PrettifierPolicy{}, cfg.Prettifier)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Empty(t, cfg.Providers)
	assert.False(t, cfg.Auth.Enabled)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultRoutingPolicy(t *testing.T) {
	cfg := DefaultRoutingPolicy()
	assert.Equal(t, "best", cfg.Strategy)
	assert.True(t, validRoutingStrategies[cfg.Strategy])
	assert.Equal(t, 3, cfg.K)
	assert.Equal(t, 1.0, cfg.Temperature)
	assert.Equal(t, 1.0, cfg.Weights.Priority)
	assert.InDelta(t, 0.01, cfg.Weights.Latency, 0.0001)
	assert.InDelta(t, 0.001, cfg.Weights.Cost, 0.0001)
	assert.Equal(t, 1.0, cfg.Weights.Health)
	assert.Equal(t, 0.5, cfg.Weights.Load)
}

func TestDefaultClassifierPolicy(t *testing.T) {
	cfg := DefaultClassifierPolicy()
	assert.Equal(t, 2000, cfg.ThinkingTokensThreshold)
	assert.Equal(t, 32000, cfg.LongContextThreshold)
	assert.Equal(t, 1024, cfg.ImageTokenAllowance)
}

func TestDefaultFailoverPolicy(t *testing.T) {
	cfg := DefaultFailoverPolicy()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 4, cfg.MaxTotalAttempts)
	assert.Equal(t, 2, cfg.PerProviderAttempts)
	assert.Equal(t, 200, cfg.InitialBackoffMs)
	assert.Equal(t, 5000, cfg.MaxBackoffMs)
	assert.InDelta(t, 0.2, cfg.JitterRatio, 0.0001)
}

func TestDefaultCircuitBreakerPolicy(t *testing.T) {
	cfg := DefaultCircuitBreakerPolicy()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 30, cfg.RecoveryDelayS)
	assert.Equal(t, 2500, cfg.ProbeTimeoutMs)
	assert.Equal(t, 3, cfg.SuccessesToClose)
}

func TestDefaultDeadlinePolicy(t *testing.T) {
	cfg := DefaultDeadlinePolicy()
	assert.Equal(t, 30000, cfg.PerRequestMs)
	assert.Equal(t, 10000, cfg.PerAttemptMs)
	assert.Less(t, cfg.PerAttemptMs, cfg.PerRequestMs)
}

func TestDefaultPrettifierPolicy(t *testing.T) {
	cfg := DefaultPrettifierPolicy()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "default", cfg.DefaultFormatter)
	assert.Empty(t, cfg.ProviderMappings)
	assert.NotEmpty(t, cfg.SecurityPatterns)
	assert.Contains(t, cfg.SecurityPatterns, "/etc/passwd")
	assert.Contains(t, cfg.SecurityPatterns, "<script")
	assert.Contains(t, cfg.SecurityPatterns, "DROP TABLE")
	assert.Equal(t, 10*1024*1024, cfg.MaxStreamBufferBytes)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "aimux", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
