// Package config builds runtime configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr          string
	JWTSigningKey string
	LoginURL      string

	RedisURL     string
	PostgresDSN  string
	KafkaBrokers []string
	AuditTopic   string

	// DecisionTTL bounds decision-cache staleness when an invalidation call
	// is missed.
	DecisionTTL time.Duration
}

func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("CLINAUTH_ADDR", ":8080"),
		JWTSigningKey: envOr("CLINAUTH_JWT_SIGNING_KEY", "dev-secret-change-in-production"),
		LoginURL:      os.Getenv("CLINAUTH_LOGIN_URL"),
		RedisURL:      os.Getenv("CLINAUTH_REDIS_URL"),
		PostgresDSN:   os.Getenv("CLINAUTH_POSTGRES_DSN"),
		AuditTopic:    os.Getenv("CLINAUTH_AUDIT_TOPIC"),
		DecisionTTL:   5 * time.Minute,
	}
	if brokers := os.Getenv("CLINAUTH_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if raw := os.Getenv("CLINAUTH_DECISION_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			cfg.DecisionTTL = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
