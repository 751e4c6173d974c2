// Package config loads the example host's environment configuration,
// grounded on the teacher's config/config.go: caarlos0/env struct tags
// plus go-playground/validator for range/enum checks. It is ambient-stack
// wiring for cmd/monqueworker, not part of the monque.Options the library
// itself exposes.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	WorkerConcurrency   int `env:"WORKER_CONCURRENCY" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalMS      int `env:"POLL_INTERVAL_MS" envDefault:"1000" validate:"min=10"`
	LockTimeoutMS       int `env:"LOCK_TIMEOUT_MS" envDefault:"30000" validate:"min=1000"`
	MaxRetries          int `env:"MAX_RETRIES" envDefault:"3" validate:"min=1,max=50"`
	BaseRetryIntervalMS int `env:"BASE_RETRY_INTERVAL_MS" envDefault:"1000" validate:"min=1"`
	MaxBackoffDelayMS   int `env:"MAX_BACKOFF_DELAY_MS" envDefault:"86400000" validate:"min=1"`
	ShutdownTimeoutMS   int `env:"SHUTDOWN_TIMEOUT_MS" envDefault:"5000" validate:"min=0"`

	RecoverStaleJobs bool `env:"RECOVER_STALE_JOBS" envDefault:"true"`

	RetentionCompletedMS int `env:"RETENTION_COMPLETED_MS" envDefault:"0" validate:"min=0"`
	RetentionFailedMS    int `env:"RETENTION_FAILED_MS" envDefault:"0" validate:"min=0"`
	RetentionIntervalMS  int `env:"RETENTION_INTERVAL_MS" envDefault:"0" validate:"min=0"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts LOG_LEVEL to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) PollInterval() time.Duration      { return time.Duration(c.PollIntervalMS) * time.Millisecond }
func (c *Config) LockTimeout() time.Duration        { return time.Duration(c.LockTimeoutMS) * time.Millisecond }
func (c *Config) BaseRetryInterval() time.Duration  { return time.Duration(c.BaseRetryIntervalMS) * time.Millisecond }
func (c *Config) MaxBackoffDelay() time.Duration    { return time.Duration(c.MaxBackoffDelayMS) * time.Millisecond }
func (c *Config) ShutdownTimeout() time.Duration    { return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond }
func (c *Config) RetentionCompleted() time.Duration { return time.Duration(c.RetentionCompletedMS) * time.Millisecond }
func (c *Config) RetentionFailed() time.Duration    { return time.Duration(c.RetentionFailedMS) * time.Millisecond }
func (c *Config) RetentionInterval() time.Duration  { return time.Duration(c.RetentionIntervalMS) * time.Millisecond }
