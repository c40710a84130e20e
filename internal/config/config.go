// Package config loads the runtime configuration of the server, worker and migrate commands.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"larder/internal/core/types"
	"larder/internal/infrastructure/storage/postgres"
	"larder/pkg/logger"
)

// Cost propagation modes.
const (
	PropagationQueue  = "queue"
	PropagationInline = "inline"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppPort         int           `envconfig:"APP_PORT" default:"8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	Version         string        `envconfig:"APP_VERSION" default:"dev"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// TxMaxAttempts bounds optimistic-concurrency retries of one operation.
	TxMaxAttempts int         `envconfig:"TX_MAX_ATTEMPTS" default:"3"`
	CostEpsilon   types.Money `envconfig:"COST_EPSILON" default:"0.0001"`

	PropagationMode   string        `envconfig:"PROPAGATION_MODE" default:"queue"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"10"`
	ReconcileLockTTL  time.Duration `envconfig:"RECONCILE_LOCK_TTL" default:"2m"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"2s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	// OutboxRetention is how long published outbox rows are kept.
	OutboxRetention time.Duration `envconfig:"OUTBOX_RETENTION" default:"168h"`

	NotificationChannel string        `envconfig:"NOTIFICATION_CHANNEL" default:"larder:notifications"`
	MenuCostCacheTTL    time.Duration `envconfig:"MENU_COST_CACHE_TTL" default:"1h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be provided")
	}
	switch c.PropagationMode {
	case PropagationQueue, PropagationInline:
	default:
		return fmt.Errorf("PROPAGATION_MODE must be %q or %q, got %q", PropagationQueue, PropagationInline, c.PropagationMode)
	}
	if c.TxMaxAttempts < 1 {
		return errors.New("TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.CostEpsilon.IsNegative() {
		return errors.New("COST_EPSILON cannot be negative")
	}
	if c.OutboxBatchSize < 1 {
		return errors.New("OUTBOX_BATCH_SIZE must be at least 1")
	}
	return nil
}

// IsDevelopment returns true outside production.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv != "production"
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}

// Logger returns the logger configuration.
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.LogLevel, Development: c.IsDevelopment()}
}

// Pool returns the database pool configuration.
func (c *Config) Pool() postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(c.DatabaseURL)
	pc.MaxConns = c.DBMaxConns
	pc.MinConns = c.DBMinConns
	pc.MaxConnLifetime = c.DBMaxConnLifetime
	pc.MaxConnIdleTime = c.DBMaxConnIdleTime
	return pc
}
