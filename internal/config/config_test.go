package config

import "testing"

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "")
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("POLL_BACKOFF_MULTIPLIER", "")
	t.Setenv("MATCH_FALLBACK_DAYS", "")
	t.Setenv("REMINDER_DELIVERY_HOUR", "")
	t.Setenv("REMINDER_DISPATCH_SCHEDULE", "")

	cfg := Load()
	if cfg.PollMaxAttempts != 50 {
		t.Fatalf("expected default poll attempts 50, got %d", cfg.PollMaxAttempts)
	}
	if cfg.PollIntervalMillis != 1000 {
		t.Fatalf("expected default poll interval 1000ms, got %d", cfg.PollIntervalMillis)
	}
	if cfg.PollBackoffMultiplier != 1 {
		t.Fatalf("expected fixed interval by default, got multiplier %v", cfg.PollBackoffMultiplier)
	}
	if cfg.MatchFallbackDays != 4 {
		t.Fatalf("expected fallback 4 days, got %v", cfg.MatchFallbackDays)
	}
	if cfg.ReminderDeliveryHour != 8 {
		t.Fatalf("expected delivery hour 8, got %d", cfg.ReminderDeliveryHour)
	}
	if cfg.ReminderDispatchSpec != "@every 1m" {
		t.Fatalf("expected dispatch every minute, got %q", cfg.ReminderDispatchSpec)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "10")
	t.Setenv("POLL_BACKOFF_MULTIPLIER", "1.5")
	t.Setenv("MATCH_FALLBACK_DAYS", "2.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("CATALOG_SOURCE", "xlsx")

	cfg := Load()
	if cfg.PollMaxAttempts != 10 {
		t.Fatalf("expected poll attempts override, got %d", cfg.PollMaxAttempts)
	}
	if cfg.PollBackoffMultiplier != 1.5 {
		t.Fatalf("expected multiplier 1.5, got %v", cfg.PollBackoffMultiplier)
	}
	if cfg.MatchFallbackDays != 2.5 {
		t.Fatalf("expected fallback 2.5, got %v", cfg.MatchFallbackDays)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.CatalogSource != "xlsx" {
		t.Fatalf("expected xlsx catalog source, got %q", cfg.CatalogSource)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "many")
	t.Setenv("POLL_BACKOFF_MULTIPLIER", "fast")

	cfg := Load()
	if cfg.PollMaxAttempts != 50 || cfg.PollBackoffMultiplier != 1 {
		t.Fatalf("expected defaults on malformed values, got %d and %v", cfg.PollMaxAttempts, cfg.PollBackoffMultiplier)
	}
}

func TestLocationResolvesTimezone(t *testing.T) {
	loc, err := Config{ReminderTimezone: "Europe/Berlin"}.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", loc)
	}

	if _, err := (Config{ReminderTimezone: "Mars/Olympus"}).Location(); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
