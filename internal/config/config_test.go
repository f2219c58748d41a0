package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("expected default access TTL 15m, got %v", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 720*time.Hour {
		t.Fatalf("expected default refresh TTL 720h, got %v", cfg.RefreshTTL)
	}
	if cfg.MigrationsDir != "./db/migrations" {
		t.Fatalf("unexpected migrations dir %q", cfg.MigrationsDir)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IDEAHUB_ADDR", ":9191")
	t.Setenv("IDEAHUB_ACCESS_TTL", "5m")
	t.Setenv("IDEAHUB_SMTP_HOST", "mail.internal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("expected env addr :9191, got %q", cfg.Addr)
	}
	if cfg.AccessTTL != 5*time.Minute {
		t.Fatalf("expected env access TTL 5m, got %v", cfg.AccessTTL)
	}
	if cfg.SMTPHost != "mail.internal" {
		t.Fatalf("expected env smtp host, got %q", cfg.SMTPHost)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for short jwt_secret")
	}

	cfg.JWTSecret = "long-enough-secret-value"
	cfg.RefreshTTL = cfg.AccessTTL
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when refresh_ttl <= access_ttl")
	}
}
