package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Scheduler worker knobs.
	WorkerPool        int   `env:"WORKER_POOL" envDefault:"10" validate:"min=1,max=100"`
	BatchSize         int   `env:"BATCH_SIZE" envDefault:"10" validate:"min=1,max=100"`
	IdleMs            int64 `env:"IDLE_MS" envDefault:"1000" validate:"min=100"`
	LeaseMs           int64 `env:"LEASE_MS" envDefault:"60000" validate:"min=1000"`
	ZombieAgeMs       int64 `env:"ZOMBIE_AGE_MS" envDefault:"300000" validate:"min=10000"`
	ShutdownTimeoutMs int64 `env:"SHUTDOWN_TIMEOUT_MS" envDefault:"30000" validate:"min=1000"`

	// Planner knobs.
	PlannerIntervalMs int64  `env:"PLANNER_INTERVAL_MS" envDefault:"300000" validate:"min=10000"`
	PlannerBatchSize  int    `env:"PLANNER_BATCH_SIZE" envDefault:"20" validate:"min=1,max=200"`
	LLMBaseURL        string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey         string `env:"LLM_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	LLMModel          string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMMaxTokens      int    `env:"LLM_MAX_TOKENS" envDefault:"1500" validate:"min=100,max=32000"`

	// Tier floor overrides, milliseconds.
	FreeMinIntervalMs       int64 `env:"FREE_MIN_INTERVAL_MS" envDefault:"60000" validate:"min=1000"`
	ProMinIntervalMs        int64 `env:"PRO_MIN_INTERVAL_MS" envDefault:"10000" validate:"min=1000"`
	EnterpriseMinIntervalMs int64 `env:"ENTERPRISE_MIN_INTERVAL_MS" envDefault:"1000" validate:"min=1000"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`

	// Failure-streak alerting.
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	AlertsTo     string `env:"ALERTS_TO"`
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

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
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

// Lease returns LeaseMs as a duration.
func (c *Config) Lease() time.Duration { return time.Duration(c.LeaseMs) * time.Millisecond }

// Idle returns IdleMs as a duration.
func (c *Config) Idle() time.Duration { return time.Duration(c.IdleMs) * time.Millisecond }

// ZombieAge returns ZombieAgeMs as a duration.
func (c *Config) ZombieAge() time.Duration { return time.Duration(c.ZombieAgeMs) * time.Millisecond }

// ShutdownTimeout returns ShutdownTimeoutMs as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// PlannerInterval returns PlannerIntervalMs as a duration.
func (c *Config) PlannerInterval() time.Duration {
	return time.Duration(c.PlannerIntervalMs) * time.Millisecond
}
