package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	// PostgresDSN selects the durable event store; empty falls back to the
	// in-memory store (development and tests only).
	PostgresDSN string

	Redis RedisConfig
	Alert AlertConfig
	Audit AuditConfig
}

// RedisConfig configures the optional Redis client used for alert dedupe.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AlertConfig configures violation alert delivery.
type AlertConfig struct {
	WebhookURL   string
	KafkaBrokers []string
	KafkaTopic   string
	QueueSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	DedupeWindow time.Duration
}

// AuditConfig carries the violation detection thresholds and the timezones
// the rules and reports are anchored to.
type AuditConfig struct {
	// ClinicTimezone anchors the after-hours rule. Wall-clock server
	// location is never used.
	ClinicTimezone *time.Location
	// ReportingTimezone anchors "today" in summary statistics.
	ReportingTimezone *time.Location

	BusinessHoursStart int // inclusive, 24h clock
	BusinessHoursEnd   int // exclusive

	MaxAccessPerHour    int
	BulkAccessThreshold int
	BulkAccessWindow    time.Duration
	ExcessiveWindow     time.Duration

	// RetentionYears is the minimum retention policy surfaced to operators.
	// There is intentionally no deletion path in any store.
	RetentionYears int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	clinicTZ, err := loadLocation("CLINIC_TIMEZONE")
	if err != nil {
		return Server{}, err
	}
	reportingTZ, err := loadLocation("REPORTING_TIMEZONE")
	if err != nil {
		return Server{}, err
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          envOr("PHIGUARD_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Alert: AlertConfig{
			WebhookURL:   os.Getenv("ALERT_WEBHOOK_URL"),
			KafkaBrokers: splitNonEmpty(os.Getenv("ALERT_KAFKA_BROKERS")),
			KafkaTopic:   envOr("ALERT_KAFKA_TOPIC", "phiguard.violations"),
			QueueSize:    envInt("ALERT_QUEUE_SIZE", 1024),
			MaxAttempts:  envInt("ALERT_MAX_ATTEMPTS", 3),
			RetryBackoff: envDuration("ALERT_RETRY_BACKOFF", time.Second),
			DedupeWindow: envDuration("ALERT_DEDUPE_WINDOW", 15*time.Minute),
		},
		Audit: AuditConfig{
			ClinicTimezone:      clinicTZ,
			ReportingTimezone:   reportingTZ,
			BusinessHoursStart:  envInt("BUSINESS_HOURS_START", 7),
			BusinessHoursEnd:    envInt("BUSINESS_HOURS_END", 19),
			MaxAccessPerHour:    envInt("MAX_PATIENT_ACCESS_PER_HOUR", 20),
			BulkAccessThreshold: envInt("BULK_ACCESS_THRESHOLD", 10),
			BulkAccessWindow:    envDuration("BULK_ACCESS_WINDOW", 10*time.Minute),
			ExcessiveWindow:     envDuration("EXCESSIVE_QUERY_WINDOW", time.Hour),
			RetentionYears:      envInt("AUDIT_RETENTION_YEARS", 6),
		},
	}, nil
}

func loadLocation(key string) (*time.Location, error) {
	name := os.Getenv(key)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load %s %q: %w", key, name, err)
	}
	return loc, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
