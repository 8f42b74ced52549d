package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("NEL_REFRESH_TTL_SECONDS", "")
	t.Setenv("NOTIFICATION_DEDUPE_WINDOW", "")
	t.Setenv("APP_ENV", "")

	cfg := Load()
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("expected 30 day refresh ttl, got %s", cfg.RefreshTTL)
	}
	if cfg.RefreshUpdateAge != 15*24*time.Hour {
		t.Fatalf("expected 15 day update age, got %s", cfg.RefreshUpdateAge)
	}
	if cfg.NotificationDedupeWindow != 0 {
		t.Fatalf("expected no dedupe window by default, got %s", cfg.NotificationDedupeWindow)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("NEL_ACCESS_TTL_SECONDS", "60")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("NOTIFICATION_DEDUPE_WINDOW", "6h")
	t.Setenv("NEL_SITE_URL", "https://app.example.com/")

	cfg := Load()
	if cfg.IsDevelopment() {
		t.Fatalf("expected production")
	}
	if cfg.AccessTTL != time.Minute {
		t.Fatalf("expected 1m access ttl, got %s", cfg.AccessTTL)
	}
	if !cfg.S3UseSSL {
		t.Fatalf("expected ssl enabled")
	}
	if cfg.NotificationDedupeWindow != 6*time.Hour {
		t.Fatalf("expected 6h window, got %s", cfg.NotificationDedupeWindow)
	}
	if cfg.SiteURL != "https://app.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.SiteURL)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("NEL_ACCESS_TTL_SECONDS", "soon")
	t.Setenv("CRON_ENABLED", "maybe")
	t.Setenv("NOTIFICATION_DEDUPE_WINDOW", "forever")

	cfg := Load()
	if cfg.AccessTTL != 900*time.Second {
		t.Fatalf("expected fallback access ttl, got %s", cfg.AccessTTL)
	}
	if !cfg.CronEnabled {
		t.Fatalf("expected fallback cron enabled")
	}
	if cfg.NotificationDedupeWindow != 0 {
		t.Fatalf("expected fallback window, got %s", cfg.NotificationDedupeWindow)
	}
}
