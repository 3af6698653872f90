// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known collaborator service IDs. Each must appear under `services` in
// the config file.
const (
	ServiceSubjects  = "subjects"
	ServiceMedia     = "media"
	ServiceInvoicing = "invoicing"
	ServiceLedger    = "ledger"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Identity      IdentityConfig           `yaml:"identity"`
	Checkpoint    CheckpointConfig         `yaml:"checkpoint"`
	Idempotency   IdempotencyConfig        `yaml:"idempotency"`
	Services      map[string]ServiceConfig `yaml:"services"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes JWT and identity provider settings.
type IdentityConfig struct {
	Issuer       string            `yaml:"issuer"`
	Audience     string            `yaml:"audience"`
	JWKSURL      string            `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration     `yaml:"jwks_cache_ttl"`
	Algorithms   []string          `yaml:"algorithms"`
	ClaimPaths   map[string]string `yaml:"claim_paths"`
}

// CheckpointConfig describes where workflow progress is persisted.
type CheckpointConfig struct {
	Driver          string        `yaml:"driver"` // "memory" or "postgres"
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IdempotencyConfig describes submit deduplication settings.
type IdempotencyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Driver     string        `yaml:"driver"` // "memory" or "redis"
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ServiceConfig describes one backend collaborator service.
type ServiceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings per service.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// RetryConfig describes retry settings per service.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	IdempotentOnly    bool          `yaml:"idempotent_only"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Exporter          string  `yaml:"exporter"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRate      float64 `yaml:"sampling_rate"`
	ForceSampleErrors bool    `yaml:"force_sample_errors"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  32 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id", "X-Idempotency-Key"},
				MaxAge:         86400,
			},
		},
		Identity: IdentityConfig{
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
			ClaimPaths: map[string]string{
				"actor_id":  "sub",
				"tenant_id": "tenant_id",
				"email":     "email",
				"roles":     "roles",
			},
		},
		Checkpoint: CheckpointConfig{
			Driver:          "memory",
			DSNEnv:          "VACATE_CHECKPOINT_DSN",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Enabled:    true,
			Driver:     "memory",
			AddrEnv:    "VACATE_IDEMPOTENCY_REDIS_ADDR",
			DefaultTTL: 24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.JWKSURL == "" {
		errs = append(errs, "identity.jwks_url is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	switch c.Checkpoint.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("checkpoint.driver %q is not supported", c.Checkpoint.Driver))
	}
	if c.Idempotency.Enabled {
		switch c.Idempotency.Driver {
		case "memory", "redis":
		default:
			errs = append(errs, fmt.Sprintf("idempotency.driver %q is not supported", c.Idempotency.Driver))
		}
	}
	for _, id := range []string{ServiceSubjects, ServiceMedia, ServiceInvoicing, ServiceLedger} {
		svc, ok := c.Services[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("services.%s is required", id))
			continue
		}
		if svc.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("services.%s.base_url is required", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Service returns the configuration for a collaborator service ID.
func (c *Config) Service(id string) ServiceConfig {
	return c.Services[id]
}

// applyEnvOverrides reads VACATE_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VACATE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VACATE_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("VACATE_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("VACATE_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("VACATE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("VACATE_CHECKPOINT_DRIVER"); v != "" {
		cfg.Checkpoint.Driver = v
	}
}
