package config_test

import (
	"testing"

	"hypermaps/server/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load with defaults: %v", err)
	}
	if cfg.ServiceName != "flow-api" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if cfg.StoreBackend != config.StoreBackendRelational {
		t.Errorf("default backend = %q, want relational", cfg.StoreBackend)
	}
	if cfg.Addr() != ":8084" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "graphql")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestLoadRequiresIssuerWhenAuthEnabled(t *testing.T) {
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("AUTH_ISSUER", "")
	t.Setenv("AUTH_JWKS_URL", "")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error when auth is enabled without issuer")
	}
}

func TestLoadRequiresRedisWhenRateLimited(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected an error when rate limiting is enabled without redis")
	}
}
