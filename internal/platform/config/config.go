// Package config builds service configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// JWTSigningKey verifies actor tokens issued by the identity service.
	JWTSigningKey string
	// AdminTokenHash is the bcrypt hash of the admin token guarding rule and
	// checkpoint administration. Empty disables the admin surface.
	AdminTokenHash string
}

// Postgres captures database configuration. An empty DSN selects the
// in-memory stores.
type Postgres struct {
	DSN string
}

// Redis captures rule cache configuration. An empty URL disables caching.
type Redis struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures notification bus configuration. No brokers disables the
// Kafka publisher and notifications stay in-process.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Alert captures evaluation engine tuning.
type Alert struct {
	QueueSize int
	Workers   int
}

type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Alert    Alert
}

// FromEnv builds the full configuration from environment variables.
func FromEnv() Config {
	addr := os.Getenv("VERITRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("VERITRAIL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default, override in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	kafkaTopic := os.Getenv("VERITRAIL_KAFKA_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "veritrail.notifications"
	}

	return Config{
		Server: Server{
			Addr:           addr,
			JWTSigningKey:  jwtSigningKey,
			AdminTokenHash: os.Getenv("VERITRAIL_ADMIN_TOKEN_HASH"),
		},
		Postgres: Postgres{
			DSN: os.Getenv("VERITRAIL_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("VERITRAIL_REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("VERITRAIL_KAFKA_BROKERS")),
			Topic:   kafkaTopic,
		},
		Alert: Alert{
			QueueSize: intFromEnv("VERITRAIL_ALERT_QUEUE_SIZE", 1024),
			Workers:   intFromEnv("VERITRAIL_ALERT_WORKERS", 4),
		},
	}
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
