// Package config provides configuration for the orchestrator.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort     int `env:"HTTP_PORT" envDefault:"8080"`
	InternalPort int `env:"INTERNAL_PORT" envDefault:"8081"`

	// Storage
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:orchestrator.db?cache=shared&mode=rwc"`

	// Broker. Empty means in-process backends (single-node mode).
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Capacity
	SlotCapacity   int           `env:"SLOT_CAPACITY" envDefault:"4"`
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" envDefault:"30s"`
	LockTimeout    time.Duration `env:"LOCK_TIMEOUT" envDefault:"30m"`

	// Dispatch queue
	QueueKey         string        `env:"QUEUE_KEY" envDefault:"dispatch"`
	QueueMaxAttempts int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
	QueueBackoffBase time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"5s"`
	QueueVisibility  time.Duration `env:"QUEUE_VISIBILITY" envDefault:"60s"`

	// Retention
	DedupRetention time.Duration `env:"DEDUP_RETENTION" envDefault:"168h"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
