// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration of the API process.
type Config struct {
	Addr string `env:"AUTH_ADDR" envDefault:":8080"`

	DatabaseURL     string        `env:"AUTH_PG_DSN"`
	PoolBaseSize    int           `env:"AUTH_PG_POOL_SIZE" envDefault:"10"`
	PoolOverflow    int           `env:"AUTH_PG_POOL_OVERFLOW" envDefault:"20"`
	CheckoutTimeout time.Duration `env:"AUTH_PG_POOL_TIMEOUT" envDefault:"30s"`
	MaxConnAge      time.Duration `env:"AUTH_PG_POOL_RECYCLE" envDefault:"5m"`

	BreakerThreshold int           `env:"AUTH_BREAKER_THRESHOLD" envDefault:"3"`
	BreakerCooldown  time.Duration `env:"AUTH_BREAKER_COOLDOWN" envDefault:"30s"`

	EncryptionEnabled bool   `env:"AUTH_ENCRYPTION_ENABLED" envDefault:"false"`
	EncryptionSecret  string `env:"AUTH_SECRET_KEY"`

	JWTSecret string `env:"AUTH_JWT_SECRET"`

	RateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"100"`

	ShutdownGrace time.Duration `env:"AUTH_SHUTDOWN_GRACE" envDefault:"10s"`
}

var loadEnvOnce sync.Once

// Load reads the .env file if present, parses the environment and
// validates the result.
func Load() (Config, error) {
	loadEnvOnce.Do(func() {
		// A missing .env file is fine; real deployments set the
		// environment directly.
		_ = godotenv.Load()
	})
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot safely run with.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: AUTH_PG_DSN is required")
	}
	if c.EncryptionEnabled && c.EncryptionSecret == "" {
		return errors.New("config: AUTH_ENCRYPTION_ENABLED requires AUTH_SECRET_KEY")
	}
	if c.PoolBaseSize <= 0 {
		return errors.New("config: AUTH_PG_POOL_SIZE must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("config: rate limit settings must be positive")
	}
	return nil
}
