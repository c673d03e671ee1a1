// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/llmgov/internal/cache"
	"github.com/blueberrycongee/llmgov/internal/observability"
	"github.com/blueberrycongee/llmgov/internal/resilience"
	"github.com/blueberrycongee/llmgov/pkg/types"
)

// Backend types.
const (
	BackendHTTP     = "http"
	BackendScripted = "scripted"
)

// Config represents the complete orchestrator configuration.
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Backend    BackendConfig               `yaml:"backend"`
	Defaults   CallDefaults                `yaml:"defaults"`
	Cache      cache.Config                `yaml:"cache"`
	Resilience resilience.ManagerConfig    `yaml:"resilience"`
	Normalizer NormalizerConfig            `yaml:"normalizer"`
	Logging    LoggingConfig               `yaml:"logging"`
	Metrics    MetricsConfig               `yaml:"metrics"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	Secrets    SecretsConfig               `yaml:"secrets"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// BackendConfig describes the single language-model backend.
type BackendConfig struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"` // http, scripted
	URL     string            `yaml:"url"`
	APIKey  string            `yaml:"api_key"`
	Timeout time.Duration     `yaml:"timeout"` // per attempt; zero uses the call deadline only
	Headers map[string]string `yaml:"headers"`

	// MaxResponseBytes caps response bodies read from the backend.
	MaxResponseBytes int64 `yaml:"max_response_bytes"`

	// Script drives the scripted backend (demo mode). Entries are returned
	// in order and the last one repeats.
	Script []ScriptStep `yaml:"script"`
}

// ScriptStep is one scripted backend reply.
type ScriptStep struct {
	Reply any           `yaml:"reply"`
	Error string        `yaml:"error"` // timeout, unavailable, rate_limit, invalid, malformed
	Delay time.Duration `yaml:"delay"`
}

// CallDefaults apply to requests that leave fields unset.
type CallDefaults struct {
	Timeout  time.Duration  `yaml:"timeout"`
	Priority types.Priority `yaml:"priority"`
}

// NormalizerConfig tunes the response normalizer.
type NormalizerConfig struct {
	Fields          []string `yaml:"fields"`
	MaxDepth        int      `yaml:"max_depth"`
	MinContentRunes int      `yaml:"min_content_runes"`
	ErrorTokens     []string `yaml:"error_tokens"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// SecretsConfig controls how secret references such as backend.api_key are
// resolved. "env://NAME" reads an environment variable and
// "vault://path#key" reads HashiCorp Vault; other values are used verbatim.
type SecretsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Vault    VaultConfig   `yaml:"vault"`
}

// VaultConfig contains HashiCorp Vault connection settings.
type VaultConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	Namespace  string `yaml:"namespace"`
	AuthMethod string `yaml:"auth_method"` // approle, cert, token
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	Token      string `yaml:"token"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Backend: BackendConfig{
			Name: "default",
			Type: BackendHTTP,
		},
		Defaults: CallDefaults{
			Timeout:  30 * time.Second,
			Priority: types.PriorityInteractive,
		},
		Cache:      cache.DefaultConfig(),
		Resilience: resilience.DefaultManagerConfig(),
		Normalizer: NormalizerConfig{
			MaxDepth:        1,
			MinContentRunes: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: observability.DefaultTracingConfig(),
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration bytes over the defaults and validates the
// result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Backend.Type {
	case BackendHTTP:
		if strings.TrimSpace(c.Backend.URL) == "" {
			return errors.New("backend.url is required for http backends")
		}
	case BackendScripted:
	default:
		return fmt.Errorf("unsupported backend.type: %q", c.Backend.Type)
	}
	if c.Backend.Timeout < 0 {
		return errors.New("backend.timeout cannot be negative")
	}
	if c.Backend.MaxResponseBytes < 0 {
		return errors.New("backend.max_response_bytes cannot be negative")
	}

	if c.Defaults.Timeout <= 0 {
		return errors.New("defaults.timeout must be positive")
	}

	if !c.Cache.Type.Valid() {
		return fmt.Errorf("unsupported cache.type: %q", c.Cache.Type)
	}
	ttl := c.Cache.TTL
	if ttl.Interactive < 0 || ttl.Background < 0 || ttl.ConsciousnessCycle < 0 {
		return errors.New("cache.ttl values cannot be negative")
	}

	r := c.Resilience
	if r.Concurrency < 1 {
		return fmt.Errorf("resilience.concurrency must be at least 1, got %d", r.Concurrency)
	}
	if r.CircuitBreaker.FailureThreshold < 0 {
		return errors.New("resilience.circuit_breaker.failure_threshold cannot be negative")
	}
	if r.CircuitBreaker.BackoffFactor != 0 && r.CircuitBreaker.BackoffFactor < 1 {
		return errors.New("resilience.circuit_breaker.backoff_factor must be >= 1")
	}
	if r.CircuitBreaker.MaxCooldown > 0 && r.CircuitBreaker.MaxCooldown < r.CircuitBreaker.BaseCooldown {
		return errors.New("resilience.circuit_breaker.max_cooldown must be >= base_cooldown")
	}
	if r.Retry.MaxRetries < 0 {
		return errors.New("resilience.retry.max_retries cannot be negative")
	}
	if r.Retry.Jitter < 0 || r.Retry.Jitter > 1 {
		return errors.New("resilience.retry.jitter must be between 0 and 1")
	}
	if r.RateGate.RequestsPerSecond < 0 {
		return errors.New("resilience.rate_gate.requests_per_second cannot be negative")
	}
	if r.SharedQuota.Limit < 0 {
		return errors.New("resilience.shared_quota.limit cannot be negative")
	}

	if c.Normalizer.MaxDepth < 0 || c.Normalizer.MinContentRunes < 0 {
		return errors.New("normalizer limits cannot be negative")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("tracing.sample_rate must be between 0 and 1")
	}
	switch c.Tracing.Protocol {
	case "", observability.ProtocolGRPC, observability.ProtocolHTTP:
	default:
		return fmt.Errorf("tracing.protocol %q is not supported", c.Tracing.Protocol)
	}

	if c.Secrets.Vault.Enabled && strings.TrimSpace(c.Secrets.Vault.Address) == "" {
		return errors.New("secrets.vault.address is required when vault is enabled")
	}

	return nil
}

// Warning codes.
const (
	WarningScriptedBackend         = "scripted_backend"
	WarningAttemptExceedsCall      = "attempt_timeout_exceeds_call_timeout"
	WarningQuotaWithoutRedisCache  = "shared_quota_without_redis"
	WarningBreakerThresholdDefault = "breaker_threshold_default"
)

// Warning is a non-fatal configuration issue.
type Warning struct {
	Code    string
	Message string
}

// Warnings returns non-fatal issues worth logging at startup.
func (c *Config) Warnings() []Warning {
	var out []Warning
	if c.Backend.Type == BackendScripted {
		out = append(out, Warning{
			Code:    WarningScriptedBackend,
			Message: "backend.type is scripted; responses are canned and intended for demos",
		})
	}
	if c.Backend.Timeout > 0 && c.Backend.Timeout >= c.Defaults.Timeout {
		out = append(out, Warning{
			Code:    WarningAttemptExceedsCall,
			Message: "backend.timeout is not shorter than defaults.timeout; retries will rarely fit in the call deadline",
		})
	}
	if c.Resilience.SharedQuota.Limit > 0 && !c.Cache.Type.Shared() {
		out = append(out, Warning{
			Code:    WarningQuotaWithoutRedisCache,
			Message: "resilience.shared_quota uses the cache.redis connection although the cache store does not",
		})
	}
	if c.Resilience.CircuitBreaker.FailureThreshold == 0 {
		out = append(out, Warning{
			Code:    WarningBreakerThresholdDefault,
			Message: "resilience.circuit_breaker.failure_threshold is 0; the default threshold is used",
		})
	}
	return out
}
