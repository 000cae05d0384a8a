package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"time"

	"github.com/iliyamo/travel-booking/internal/booking"
	"github.com/iliyamo/travel-booking/internal/flight"
	"github.com/iliyamo/travel-booking/internal/logging"
	"github.com/iliyamo/travel-booking/internal/notify"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable.
type Config struct {
	Env               string        // application environment (dev/test/prod)
	Port              string        // HTTP port to listen on
	DBUser            string        // database username
	DBPass            string        // database password (optional)
	DBHost            string        // database host address
	DBPort            string        // database port number
	DBName            string        // database name
	Migrate           bool          // apply embedded migrations at startup
	JWTSecret         string        // secret used to verify bearer tokens
	RabbitURL         string        // AMQP url; empty disables events
	Currency          string        // invoice currency
	ShutdownTimeout   time.Duration // grace period for in-flight requests
	ReconcileInterval time.Duration // how often the reconciler scans sagas
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and a missing value exits the process.
func Load() Config {
	return Config{
		Env:               must("APP_ENV"),
		Port:              must("APP_PORT"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"),
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		Migrate:           envBool("DB_MIGRATE", true),
		JWTSecret:         must("JWT_SECRET"),
		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		Currency:          envStr("INVOICE_CURRENCY", "EUR"),
		ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReconcileInterval: envPositiveDur("RECONCILE_INTERVAL", 30*time.Second),
	}
}

// LoadFlightConfig reads the flight provider settings.  AFS_BASE_URL and
// AFS_API_KEY are required.
func LoadFlightConfig() flight.Config {
	return flight.Config{
		BaseURL:         must("AFS_BASE_URL"),
		APIKey:          must("AFS_API_KEY"),
		Timeout:         envDur("AFS_TIMEOUT", 5*time.Second),
		SearchAttempts:  envInt("AFS_SEARCH_ATTEMPTS", 3),
		RetryBackoff:    envDur("AFS_RETRY_BACKOFF", 200*time.Millisecond),
		BreakerFailures: uint32(envInt("AFS_BREAKER_FAILURES", 5)),
		BreakerOpenFor:  envDur("AFS_BREAKER_OPEN_FOR", 30*time.Second),
	}
}

// LoadMailConfig reads SMTP settings.  An empty SMTP_HOST disables mail.
func LoadMailConfig() notify.MailConfig {
	return notify.MailConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     envInt("SMTP_PORT", 587),
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     envStr("SMTP_FROM", "no-reply@travel-booking.local"),
	}
}

// TracingConfig configures the tracer provider.
type TracingConfig struct {
	ServiceName    string
	JaegerEndpoint string // empty keeps spans in-process
}

func LoadTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:    envStr("OTEL_SERVICE_NAME", "travel-booking"),
		JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
	}
}

// LoadReconcilerConfig reads the saga reconciler settings.
func LoadReconcilerConfig() booking.ReconcilerConfig {
	return booking.ReconcilerConfig{
		Grace:       envDur("RECONCILE_GRACE", 2*time.Minute),
		MaxAttempts: envInt("RECONCILE_MAX_ATTEMPTS", 5),
		BatchSize:   envInt("RECONCILE_BATCH_SIZE", 50),
	}
}

// LoadLogOptions reads LOG_LEVEL, LOG_FILE and LOG_FORMAT.
func LoadLogOptions() logging.Options {
	return logging.Options{
		Level:      envStr("LOG_LEVEL", "info"),
		File:       os.Getenv("LOG_FILE"),
		MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
		MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
		JSON:       envStr("LOG_FORMAT", "json") == "json",
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
