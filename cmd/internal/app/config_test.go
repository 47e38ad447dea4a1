package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"GATEKEEP_HTTP_ADDR", "GATEKEEP_LOG_LEVEL", "GATEKEEP_LOG_PRETTY",
		"GATEKEEP_DATABASE_URL", "GATEKEEP_PLATFORM_API_URL", "GATEKEEP_EVENTS_URL",
		"GATEKEEP_READINESS_REQUIRE_DB", "GATEKEEP_REQUIRE_TOKEN_HMAC",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogPretty {
		t.Fatalf("log defaults wrong: %q pretty=%v", cfg.LogLevel, cfg.LogPretty)
	}
	if cfg.DatabaseURL != "" || cfg.PlatformAPIURL != "" || cfg.EventsURL != "" {
		t.Fatal("external endpoints must default to empty")
	}
	if cfg.ReadinessRequireDB || cfg.RequireTokenHMAC {
		t.Fatal("policy toggles must default to off")
	}
	if cfg.ReadHeaderTimeout != 5*time.Second || cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("timeout defaults wrong: %+v", cfg)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 0 {
		t.Fatalf("db pool defaults wrong: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GATEKEEP_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("GATEKEEP_LOG_LEVEL", "debug")
	t.Setenv("GATEKEEP_LOG_PRETTY", "true")
	t.Setenv("GATEKEEP_PLATFORM_API_URL", "https://api.example/bot123")
	t.Setenv("GATEKEEP_EVENTS_URL", "wss://events.example/stream")
	t.Setenv("GATEKEEP_HTTP_READ_TIMEOUT", "30s")
	t.Setenv("GATEKEEP_DB_MAX_CONNS", "25")
	t.Setenv("GATEKEEP_REQUIRE_TOKEN_HMAC", "1")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" || cfg.LogLevel != "debug" || !cfg.LogPretty {
		t.Fatalf("basic overrides not applied: %+v", cfg)
	}
	if cfg.PlatformAPIURL != "https://api.example/bot123" || cfg.EventsURL != "wss://events.example/stream" {
		t.Fatalf("endpoint overrides not applied: %+v", cfg)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.DBMaxConns != 25 {
		t.Fatalf("numeric overrides not applied: %+v", cfg)
	}
	if !cfg.RequireTokenHMAC {
		t.Fatal("RequireTokenHMAC override not applied")
	}
}

func TestEnvHelpers_IgnoreGarbage(t *testing.T) {
	t.Setenv("GATEKEEP_TEST_INT", "not-a-number")
	if got := EnvInt("GATEKEEP_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt = %d, want default 7", got)
	}
	t.Setenv("GATEKEEP_TEST_DUR", "-5s")
	if got := EnvDuration("GATEKEEP_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration = %s, want default 1s", got)
	}
	t.Setenv("GATEKEEP_TEST_BOOL", "maybe")
	if got := EnvBool("GATEKEEP_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool = %v, want default true", got)
	}
}
