package types

import "time"

// Capability names a named feature a backend provider may advertise.
type Capability string

const (
	CapabilityThinking     Capability = "thinking"
	CapabilityVision       Capability = "vision"
	CapabilityTools        Capability = "tools"
	CapabilityStreaming    Capability = "streaming"
	CapabilityLongContext  Capability = "long-context"
)

// ProviderKind identifies the wire-format family a ProviderAdapter speaks.
type ProviderKind string

const (
	KindCerebras      ProviderKind = "cerebras"
	KindZai           ProviderKind = "zai"
	KindMinimax       ProviderKind = "minimax"
	KindAnthropicLike ProviderKind = "anthropic-like"
	KindOpenAILike    ProviderKind = "openai-like"
	KindSynthetic     ProviderKind = "synthetic"
)

// ProviderLimits bounds admission and per-call timeouts for a provider.
type ProviderLimits struct {
	RPM           int `json:"rpm" yaml:"rpm"`
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
	TimeoutMs     int `json:"timeout_ms" yaml:"timeout_ms"`
}

// ProviderPolicy carries the scoring and health-transition inputs for a provider.
type ProviderPolicy struct {
	PriorityScore          float64 `json:"priority_score" yaml:"priority_score"`
	CostPerOutputToken     float64 `json:"cost_per_output_token" yaml:"cost_per_output_token"`
	MaxConsecutiveFailures int     `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	RecoveryDelaySeconds   int     `json:"recovery_delay_s" yaml:"recovery_delay_s"`
	HealthCheckIntervalSec int     `json:"health_check_interval_s" yaml:"health_check_interval_s"`
}

// ProviderDescriptor is the immutable-after-load configuration for one backend.
type ProviderDescriptor struct {
	ID           string            `json:"id" yaml:"id"`
	Kind         ProviderKind      `json:"kind" yaml:"kind"`
	Endpoint     string            `json:"endpoint" yaml:"endpoint"`
	Credentials  string            `json:"-" yaml:"-"`
	Models       []string          `json:"models" yaml:"models"`
	Capabilities map[Capability]bool `json:"capabilities" yaml:"capabilities"`
	Limits       ProviderLimits    `json:"limits" yaml:"limits"`
	Policy       ProviderPolicy    `json:"policy" yaml:"policy"`
	Enabled      bool              `json:"enabled" yaml:"enabled"`
}

// HasCapabilities reports whether d advertises every capability in required.
func (d ProviderDescriptor) HasCapabilities(required map[Capability]bool) bool {
	for cap, want := range required {
		if !want {
			continue
		}
		if !d.Capabilities[cap] {
			return false
		}
	}
	return true
}

// HealthStatus is a member of the HealthSupervisor state machine.
type HealthStatus string

const (
	StatusHealthy      HealthStatus = "HEALTHY"
	StatusDegraded     HealthStatus = "DEGRADED"
	StatusUnhealthy    HealthStatus = "UNHEALTHY"
	StatusCircuitOpen  HealthStatus = "CIRCUIT_OPEN"
)

// ProviderRuntimeState is the mutable per-provider state owned by the HealthSupervisor.
type ProviderRuntimeState struct {
	ProviderID          string
	Status              HealthStatus
	ConsecutiveFailures int
	ConsecutiveSuccesses int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	EWMALatencyMs       float64
	SuccessRate         float64
	InFlight            int
	CircuitOpensAt      time.Time
	ProbesSucceeded     int
	ProbeInFlight       bool
}

// IsSelectable reports whether a provider in this state may be chosen by the selector.
func (s ProviderRuntimeState) IsSelectable() bool {
	return s.Status == StatusHealthy || s.Status == StatusDegraded
}
