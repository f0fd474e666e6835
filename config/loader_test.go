// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "best", cfg.Routing.Strategy)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  metrics_port: 9999
  read_timeout: 60s

default_provider: "cerebras"
thinking_provider: "anthropic-like"

providers:
  - id: "cerebras"
    kind: "cerebras"
    endpoint: "https://api.cerebras.ai"
    credential_env_var: "CEREBRAS_API_KEY"
    enabled: true

routing:
  strategy: "least-inflight"
  k: 5
  temperature: 0.8

failover:
  max_total_attempts: 6
  per_provider_attempts: 3

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 9999, cfg.Server.MetricsPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "cerebras", cfg.DefaultProvider)
	assert.Equal(t, "anthropic-like", cfg.ThinkingProvider)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "cerebras", cfg.Providers[0].ID)
	assert.Equal(t, "CEREBRAS_API_KEY", cfg.Providers[0].CredentialEnvVar)
	assert.True(t, cfg.Providers[0].Enabled)

	assert.Equal(t, "least-inflight", cfg.Routing.Strategy)
	assert.Equal(t, 5, cfg.Routing.K)
	assert.Equal(t, 0.8, cfg.Routing.Temperature)

	assert.Equal(t, 6, cfg.Failover.MaxTotalAttempts)
	assert.Equal(t, 3, cfg.Failover.PerProviderAttempts)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_ProviderCredentialNeverInYAML(t *testing.T) {
	// The provider block names only the environment variable; the credential
	// value itself comes from the environment when Descriptor() is called.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
providers:
  - id: "cerebras"
    kind: "cerebras"
    credential_env_var: "CEREBRAS_API_KEY"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("CEREBRAS_API_KEY", "sk-test-secret")
	defer os.Unsetenv("CEREBRAS_API_KEY")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	desc := cfg.Providers[0].Descriptor()
	assert.Equal(t, "sk-test-secret", desc.Credentials)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"AIMUX_SERVER_HTTP_PORT":      "7777",
		"AIMUX_SERVER_METRICS_PORT":   "7778",
		"AIMUX_DEFAULT_PROVIDER":      "zai",
		"AIMUX_ROUTING_STRATEGY":      "round-robin-among-top-k",
		"AIMUX_FAILOVER_MAX_TOTAL_ATTEMPTS": "10",
		"AIMUX_LOG_LEVEL":             "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 7778, cfg.Server.MetricsPort)
	assert.Equal(t, "zai", cfg.DefaultProvider)
	assert.Equal(t, "round-robin-among-top-k", cfg.Routing.Strategy)
	assert.Equal(t, 10, cfg.Failover.MaxTotalAttempts)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
default_provider: "yaml-provider"
routing:
  strategy: "best"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("AIMUX_SERVER_HTTP_PORT", "9999")
	os.Setenv("AIMUX_DEFAULT_PROVIDER", "env-provider")
	defer func() {
		os.Unsetenv("AIMUX_SERVER_HTTP_PORT")
		os.Unsetenv("AIMUX_DEFAULT_PROVIDER")
	}()

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-provider", cfg.DefaultProvider)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, "best", cfg.Routing.Strategy)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	os.Setenv("MYAPP_DEFAULT_PROVIDER", "custom-prefix-provider")
	defer func() {
		os.Unsetenv("MYAPP_SERVER_HTTP_PORT")
		os.Unsetenv("MYAPP_DEFAULT_PROVIDER")
	}()

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom-prefix-provider", cfg.DefaultProvider)
}

func TestLoader_JWTSecretResolvedFromEnvOnly(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// auth.jwt_secret is not a recognized YAML key (tagged yaml:"-"), so even
	// if present it must not populate JWTSecret.
	yamlContent := `
auth:
  enabled: true
  jwt_secret: "should-not-load"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("AIMUX_JWT_SECRET", "from-env")
	defer os.Unsetenv("AIMUX_JWT_SECRET")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	os.Setenv("AIMUX_SERVER_HTTP_PORT", "80")
	defer os.Unsetenv("AIMUX_SERVER_HTTP_PORT")

	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid HTTP port (negative)",
			modify: func(c *Config) {
				c.Server.HTTPPort = -1
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (too large)",
			modify: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			wantErr: true,
		},
		{
			name: "unknown routing strategy",
			modify: func(c *Config) {
				c.Routing.Strategy = "random-unknown-mode"
			},
			wantErr: true,
		},
		{
			name: "zero max total attempts",
			modify: func(c *Config) {
				c.Failover.MaxTotalAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "zero per-provider attempts",
			modify: func(c *Config) {
				c.Failover.PerProviderAttempts = 0
			},
			wantErr: true,
		},
		{
			name: "zero max consecutive failures",
			modify: func(c *Config) {
				c.CircuitBreaker.MaxConsecutiveFailures = 0
			},
			wantErr: true,
		},
		{
			name: "zero per-request deadline",
			modify: func(c *Config) {
				c.Deadlines.PerRequestMs = 0
			},
			wantErr: true,
		},
		{
			name: "per-attempt deadline exceeds per-request deadline",
			modify: func(c *Config) {
				c.Deadlines.PerRequestMs = 1000
				c.Deadlines.PerAttemptMs = 2000
			},
			wantErr: true,
		},
		{
			name: "duplicate provider id",
			modify: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: "dup"}, {ID: "dup"}}
			},
			wantErr: true,
		},
		{
			name: "empty provider id",
			modify: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: ""}}
			},
			wantErr: true,
		},
		{
			name: "distinct provider ids pass",
			modify: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: "a"}, {ID: "b"}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8080
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 8080, cfg.Server.HTTPPort)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("AIMUX_DEFAULT_PROVIDER", "env-only-provider")
	defer os.Unsetenv("AIMUX_DEFAULT_PROVIDER")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-provider", cfg.DefaultProvider)
}
