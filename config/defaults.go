// =============================================================================
// Aimux Default Configuration
// =============================================================================
// Provides sane defaults for every configuration section.
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Providers:      nil,
		Routing:        DefaultRoutingPolicy(),
		Classifier:     DefaultClassifierPolicy(),
		Failover:       DefaultFailoverPolicy(),
		CircuitBreaker: DefaultCircuitBreakerPolicy(),
		Deadlines:      DefaultDeadlinePolicy(),
		Prettifier:     DefaultPrettifierPolicy(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		Auth:           AuthConfig{Enabled: false},
	}
}

// DefaultServerConfig returns the default HTTP listener configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// DefaultRoutingPolicy returns the default ProviderSelector policy.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		Strategy:    "best",
		K:           3,
		Temperature: 1.0,
		Weights: RoutingWeights{
			Priority: 1.0,
			Latency:  0.01,
			Cost:     0.001,
			Health:   1.0,
			Load:     0.5,
		},
	}
}

// DefaultClassifierPolicy returns the default RequestClassifier thresholds.
func DefaultClassifierPolicy() ClassifierPolicy {
	return ClassifierPolicy{
		ThinkingTokensThreshold: 2000,
		LongContextThreshold:    32000,
		ImageTokenAllowance:     1024,
	}
}

// DefaultFailoverPolicy returns the default FailoverEngine policy.
func DefaultFailoverPolicy() FailoverPolicy {
	return FailoverPolicy{
		Enabled:             true,
		MaxTotalAttempts:    4,
		PerProviderAttempts: 2,
		InitialBackoffMs:    200,
		MaxBackoffMs:        5000,
		JitterRatio:         0.2,
	}
}

// DefaultCircuitBreakerPolicy returns the default HealthSupervisor policy.
func DefaultCircuitBreakerPolicy() CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		RecoveryDelayS:         30,
		ProbeTimeoutMs:         2500,
		SuccessesToClose:       3,
	}
}

// DefaultDeadlinePolicy returns the default request/attempt deadlines.
func DefaultDeadlinePolicy() DeadlinePolicy {
	return DeadlinePolicy{
		PerRequestMs: 30000,
		PerAttemptMs: 10000,
	}
}

// DefaultPrettifierPolicy returns the default Prettifier configuration.
func DefaultPrettifierPolicy() PrettifierPolicy {
	return PrettifierPolicy{
		Enabled:          true,
		DefaultFormatter: "default",
		ProviderMappings: map[string]string{},
		SecurityPatterns: []string{
			`<script`,
			`javascript:`,
			`onerror=`,
			`eval\(`,
			`exec\(`,
			`system\(`,
			`' OR '1'='1`,
			`DROP TABLE`,
			`UNION SELECT`,
			`\.\./`,
			`\.\.\\`,
			`/etc/passwd`,
		},
		MaxStreamBufferBytes: 10 * 1024 * 1024,
	}
}

// DefaultLogConfig returns the default logger configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default OTel configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "aimux",
		SampleRate:   0.1,
	}
}
