// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	JWTExpiry   time.Duration
	LogLevel    string

	// TelegramToken enables the Telegram transport when set.
	TelegramToken string

	ProposalTTL        time.Duration
	ProposalRetention  time.Duration
	PresenceStaleAfter time.Duration
	SweepInterval      time.Duration
	MatchInterval      time.Duration
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"JWT_EXPIRY", 72 * time.Hour, &cfg.JWTExpiry},
		{"PROPOSAL_TTL", DefaultProposalTTL, &cfg.ProposalTTL},
		{"PROPOSAL_RETENTION", DefaultProposalRetention, &cfg.ProposalRetention},
		{"PRESENCE_STALE_AFTER", DefaultPresenceStaleAfter, &cfg.PresenceStaleAfter},
		{"SWEEP_INTERVAL", DefaultSweepInterval, &cfg.SweepInterval},
		{"MATCH_INTERVAL", DefaultMatchInterval, &cfg.MatchInterval},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
