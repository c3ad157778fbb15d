package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
port: "9090"
simulate_on_failure: false
webhook_timeout: 3s
min_payout_cents: 50000
allowed_origins:
  - https://app.example.com
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Environment beats the file.
	if cfg.Port != "7070" {
		t.Errorf("port: got %q, want 7070", cfg.Port)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Errorf("jwt secret: got %q", cfg.JWTSecret)
	}
	// File beats the defaults.
	if cfg.SimulateOnFailure {
		t.Error("simulate_on_failure: file value not applied")
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Errorf("webhook timeout: got %v", cfg.WebhookTimeout)
	}
	if cfg.MinPayoutCents != 50000 {
		t.Errorf("min payout: got %d", cfg.MinPayoutCents)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("origins: got %v", cfg.AllowedOrigins)
	}
	// Untouched keys keep their defaults.
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr default: got %q", cfg.RedisAddr)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || !cfg.SimulateOnFailure {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
