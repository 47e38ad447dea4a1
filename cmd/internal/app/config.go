package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// PlatformAPIURL is the base URL of the platform's outbound API.
	// Empty disables the outbound client (dev/dry-run mode).
	PlatformAPIURL string

	// EventsURL is the websocket URL of the platform's event stream.
	// Empty disables the inbound gateway.
	EventsURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, GATEKEEP_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and entry
	// tokens must be HMAC-signed.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("GATEKEEP_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("GATEKEEP_LOG_LEVEL", "info"),
		LogPretty: EnvBool("GATEKEEP_LOG_PRETTY", false),

		ReadHeaderTimeout: EnvDuration("GATEKEEP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GATEKEEP_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GATEKEEP_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GATEKEEP_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GATEKEEP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("GATEKEEP_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GATEKEEP_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GATEKEEP_DB_MIN_CONNS", 0),

		PlatformAPIURL: EnvString("GATEKEEP_PLATFORM_API_URL", ""),
		EventsURL:      EnvString("GATEKEEP_EVENTS_URL", ""),

		ReadinessRequireDB: EnvBool("GATEKEEP_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("GATEKEEP_REQUIRE_TOKEN_HMAC", false),
	}
}
