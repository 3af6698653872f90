package config

import (
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Identity.Issuer != "https://auth.example.com" {
		t.Errorf("Identity.Issuer = %q", cfg.Identity.Issuer)
	}
	if cfg.Identity.JWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("Identity.JWKSURL = %q", cfg.Identity.JWKSURL)
	}
	if cfg.Identity.Audience != "vacate-api" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Checkpoint.Driver != "postgres" {
		t.Errorf("Checkpoint.Driver = %q, want postgres", cfg.Checkpoint.Driver)
	}
	if cfg.Idempotency.Driver != "redis" {
		t.Errorf("Idempotency.Driver = %q, want redis", cfg.Idempotency.Driver)
	}
	if cfg.Idempotency.DefaultTTL != 12*time.Hour {
		t.Errorf("Idempotency.DefaultTTL = %v, want 12h", cfg.Idempotency.DefaultTTL)
	}

	svc, ok := cfg.Services[ServiceSubjects]
	if !ok {
		t.Fatal("Services[subjects] not found")
	}
	if svc.BaseURL != "https://customers.internal" {
		t.Errorf("subjects.BaseURL = %q", svc.BaseURL)
	}
	if svc.Timeout != 10*time.Second {
		t.Errorf("subjects.Timeout = %v, want 10s", svc.Timeout)
	}
	if svc.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("subjects.CircuitBreaker.FailureThreshold = %d, want 5", svc.CircuitBreaker.FailureThreshold)
	}
	if !svc.Retry.IdempotentOnly {
		t.Error("subjects.Retry.IdempotentOnly = false, want true")
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Checkpoint.Driver != "memory" {
		t.Errorf("default Checkpoint.Driver = %q, want memory", cfg.Checkpoint.Driver)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VACATE_SERVER_PORT", "3000")
	t.Setenv("VACATE_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("VACATE_IDENTITY_JWKS_URL", "https://env-issuer.com/.well-known/jwks.json")
	t.Setenv("VACATE_IDENTITY_AUDIENCE", "env-audience")
	t.Setenv("VACATE_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "env-audience" {
		t.Errorf("Identity.Audience = %q, want env override", cfg.Identity.Audience)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate_invalid_port(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Server.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with port 0 should return error")
	}
}

func TestValidate_missing_service(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	delete(cfg.Services, ServiceLedger)

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with missing ledger service should return error")
	}
}

func TestValidate_unknown_checkpoint_driver(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Checkpoint.Driver = "dynamo"

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() with unknown checkpoint driver should return error")
	}
}
