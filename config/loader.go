// =============================================================================
// Aimux Configuration Loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AIMUX").
//	    Load()
//
// Precedence: defaults → YAML file → environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// =============================================================================
// Core configuration structure
// =============================================================================

// Config is the complete, typed configuration the gateway core consumes.
// Parsing (YAML + env overlay) happens in this package; GatewayCore never
// touches a raw file or environment variable.
type Config struct {
	// Server HTTP listener configuration.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// DefaultProvider is the fallback provider id hint when classification
	// yields no more specific hint.
	DefaultProvider string `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	// ThinkingProvider is the preferred provider id for thinking-classified requests.
	ThinkingProvider string `yaml:"thinking_provider" env:"THINKING_PROVIDER"`
	// VisionProvider is the preferred provider id for vision-classified requests.
	VisionProvider string `yaml:"vision_provider" env:"VISION_PROVIDER"`
	// ToolsProvider is the preferred provider id for tool-calling requests.
	ToolsProvider string `yaml:"tools_provider" env:"TOOLS_PROVIDER"`

	// Providers is the full set of backend descriptors. Credentials are never
	// read from this list at parse time — CredentialEnvVar names the
	// environment variable resolved separately by ProviderConfig.Descriptor.
	Providers []ProviderConfig `yaml:"providers" env:"-"`

	Routing        RoutingPolicy        `yaml:"routing" env:"ROUTING"`
	Classifier     ClassifierPolicy     `yaml:"classifier" env:"CLASSIFIER"`
	Failover       FailoverPolicy       `yaml:"failover" env:"FAILOVER"`
	CircuitBreaker CircuitBreakerPolicy `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`
	Deadlines      DeadlinePolicy       `yaml:"deadlines" env:"DEADLINES"`
	Prettifier     PrettifierPolicy     `yaml:"prettifier" env:"PRETTIFIER"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ProviderConfig is the on-disk/env shape of a types.ProviderDescriptor.
// CredentialEnvVar, not Credentials, is what the config file may name —
// the credential value itself is read from the environment each time
// Descriptor is called and never round-trips through YAML.
type ProviderConfig struct {
	ID               string                     `yaml:"id"`
	Kind             types.ProviderKind         `yaml:"kind"`
	Endpoint         string                     `yaml:"endpoint"`
	CredentialEnvVar string                     `yaml:"credential_env_var"`
	Models           []string                   `yaml:"models"`
	Capabilities     map[types.Capability]bool  `yaml:"capabilities"`
	Limits           types.ProviderLimits       `yaml:"limits"`
	Policy           types.ProviderPolicy       `yaml:"policy"`
	Enabled          bool                       `yaml:"enabled"`
}

// Descriptor resolves p into a types.ProviderDescriptor, reading the
// credential from the environment. The credential is held only in memory.
func (p ProviderConfig) Descriptor() types.ProviderDescriptor {
	var cred string
	if p.CredentialEnvVar != "" {
		cred = os.Getenv(p.CredentialEnvVar)
	}
	return types.ProviderDescriptor{
		ID:           p.ID,
		Kind:         p.Kind,
		Endpoint:     p.Endpoint,
		Credentials:  cred,
		Models:       p.Models,
		Capabilities: p.Capabilities,
		Limits:       p.Limits,
		Policy:       p.Policy,
		Enabled:      p.Enabled,
	}
}

// RoutingWeights are the coefficients ProviderSelector scoring uses.
type RoutingWeights struct {
	Priority float64 `yaml:"priority" env:"PRIORITY"`
	Latency  float64 `yaml:"latency" env:"LATENCY"`
	Cost     float64 `yaml:"cost" env:"COST"`
	Health   float64 `yaml:"health" env:"HEALTH"`
	Load     float64 `yaml:"load" env:"LOAD"`
}

// RoutingPolicy selects the load-balancing strategy and its parameters.
type RoutingPolicy struct {
	// Strategy is one of: best, weighted-random, round-robin-among-top-k, least-inflight.
	Strategy    string         `yaml:"strategy" env:"STRATEGY"`
	K           int            `yaml:"k" env:"K"`
	Temperature float64        `yaml:"temperature" env:"TEMPERATURE"`
	Weights     RoutingWeights `yaml:"weights" env:"WEIGHTS"`
}

// ClassifierPolicy configures the RequestClassifier's capability-derivation thresholds.
type ClassifierPolicy struct {
	ThinkingTokensThreshold int `yaml:"thinking_tokens_threshold" env:"THINKING_TOKENS_THRESHOLD"`
	LongContextThreshold    int `yaml:"long_context_threshold" env:"LONG_CONTEXT_THRESHOLD"`
	ImageTokenAllowance     int `yaml:"image_token_allowance" env:"IMAGE_TOKEN_ALLOWANCE"`
}

// FailoverPolicy configures the FailoverEngine's attempt loop.
type FailoverPolicy struct {
	Enabled             bool    `yaml:"enabled" env:"ENABLED"`
	MaxTotalAttempts    int     `yaml:"max_total_attempts" env:"MAX_TOTAL_ATTEMPTS"`
	PerProviderAttempts int     `yaml:"per_provider_attempts" env:"PER_PROVIDER_ATTEMPTS"`
	InitialBackoffMs    int     `yaml:"initial_backoff_ms" env:"INITIAL_BACKOFF_MS"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" env:"MAX_BACKOFF_MS"`
	JitterRatio         float64 `yaml:"jitter_ratio" env:"JITTER_RATIO"`
}

// CircuitBreakerPolicy configures the HealthSupervisor's state machine.
type CircuitBreakerPolicy struct {
	Enabled                bool `yaml:"enabled" env:"ENABLED"`
	MaxConsecutiveFailures int  `yaml:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES"`
	RecoveryDelayS         int  `yaml:"recovery_delay_s" env:"RECOVERY_DELAY_S"`
	ProbeTimeoutMs         int  `yaml:"probe_timeout_ms" env:"PROBE_TIMEOUT_MS"`
	SuccessesToClose       int  `yaml:"successes_to_close" env:"SUCCESSES_TO_CLOSE"`
}

// DeadlinePolicy configures per-request and per-attempt timeouts.
type DeadlinePolicy struct {
	PerRequestMs int `yaml:"per_request_ms" env:"PER_REQUEST_MS"`
	PerAttemptMs int `yaml:"per_attempt_ms" env:"PER_ATTEMPT_MS"`
}

// PrettifierPolicy configures the Prettifier post-processing pipeline.
type PrettifierPolicy struct {
	Enabled              bool              `yaml:"enabled" env:"ENABLED"`
	DefaultFormatter     string            `yaml:"default_formatter" env:"DEFAULT_FORMATTER"`
	ProviderMappings     map[string]string `yaml:"provider_mappings" env:"-"`
	SecurityPatterns     []string          `yaml:"security_patterns" env:"-"`
	MaxStreamBufferBytes int               `yaml:"max_stream_buffer_bytes" env:"MAX_STREAM_BUFFER_BYTES"`
}

// AuthConfig configures bearer-token verification for mutating control-plane routes.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"-" env:"-"` // resolved from env only, never from YAML
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration with a builder-style API.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AIMUX",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML configuration file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration: defaults → YAML file → environment overlay.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.Auth.JWTSecret = os.Getenv(l.envPrefix + "_JWT_SECRET")

	for i := range cfg.Providers {
		// resolve nothing here — ProviderConfig.Descriptor() resolves lazily,
		// keeping credentials out of the in-memory Config struct entirely.
		_ = cfg.Providers[i]
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv overlays environment variables onto cfg.
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively sets struct fields from environment variables.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue parses value into field according to its kind.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// validRoutingStrategies are the load-balancing modes names.
var validRoutingStrategies = map[string]bool{
	"best":                    true,
	"weighted-random":         true,
	"round-robin-among-top-k": true,
	"least-inflight":          true,
}

// Validate checks cfg for configuration errors an operator must fix.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if !validRoutingStrategies[c.Routing.Strategy] {
		errs = append(errs, fmt.Sprintf("unknown routing strategy: %s", c.Routing.Strategy))
	}

	if c.Failover.MaxTotalAttempts <= 0 {
		errs = append(errs, "failover.max_total_attempts must be positive")
	}
	if c.Failover.PerProviderAttempts <= 0 {
		errs = append(errs, "failover.per_provider_attempts must be positive")
	}

	if c.CircuitBreaker.MaxConsecutiveFailures <= 0 {
		errs = append(errs, "circuit_breaker.max_consecutive_failures must be positive")
	}

	if c.Deadlines.PerRequestMs <= 0 {
		errs = append(errs, "deadlines.per_request_ms must be positive")
	}
	if c.Deadlines.PerAttemptMs > c.Deadlines.PerRequestMs {
		errs = append(errs, "deadlines.per_attempt_ms must not exceed per_request_ms")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			errs = append(errs, "provider with empty id")
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("duplicate provider id: %s", p.ID))
		}
		seen[p.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
