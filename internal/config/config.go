package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultWorkerInterval   = 60
	DefaultWorkerMaxRetries = 3
	DefaultWorkerRetryDelay = 2
)

type Config struct {
	// ----------------------------
	// Database
	// ----------------------------
	DatabaseHost     string `envconfig:"DATABASE_HOST" default:"mysql" validate:"required"`
	DatabasePort     int    `envconfig:"DATABASE_PORT" default:"3306" validate:"min=1,max=65535"`
	DatabaseName     string `envconfig:"DATABASE_NAME" default:"featherpanel" validate:"required"`
	DatabaseUser     string `envconfig:"DATABASE_USER" default:"featherpanel" validate:"required"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD" default:"featherpanel_password"`

	// ----------------------------
	// Worker
	// ----------------------------
	// These fall back to their defaults on malformed input instead of failing startup.
	WorkerInterval   LenientInt     `envconfig:"WORKER_INTERVAL"`
	WorkerMaxRetries LenientInt     `envconfig:"WORKER_MAX_RETRIES"`
	WorkerRetryDelay LenientInt     `envconfig:"WORKER_RETRY_DELAY"`
	WorkerRateLimit  LenientFloat64 `envconfig:"WORKER_RATE_LIMIT"`

	// ----------------------------
	// Observability
	// ----------------------------
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsPort string `envconfig:"METRICS_PORT" default:""`
}

// LenientInt is a non-negative integer that keeps its current value when the
// environment holds something unparsable.
type LenientInt int

func (l *LenientInt) Decode(value string) error {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return nil
	}
	*l = LenientInt(n)
	return nil
}

// LenientFloat64 behaves like LenientInt for fractional rates.
type LenientFloat64 float64

func (l *LenientFloat64) Decode(value string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f < 0 {
		return nil
	}
	*l = LenientFloat64(f)
	return nil
}

func Load() (*Config, error) {
	cfg := Config{
		WorkerInterval:   DefaultWorkerInterval,
		WorkerMaxRetries: DefaultWorkerMaxRetries,
		WorkerRetryDelay: DefaultWorkerRetryDelay,
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	// zero interval would spin and zero attempts would never send
	if cfg.WorkerInterval == 0 {
		cfg.WorkerInterval = DefaultWorkerInterval
	}
	if cfg.WorkerMaxRetries == 0 {
		cfg.WorkerMaxRetries = DefaultWorkerMaxRetries
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.WorkerInterval) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.WorkerRetryDelay) * time.Second
}

func (c *Config) MaxRetries() int {
	return int(c.WorkerMaxRetries)
}
