package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the gateway and its worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	BackendURL          string        `envconfig:"BACKEND_URL" required:"true"`
	BackendTimeout      time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	BackendServiceToken string        `envconfig:"BACKEND_SERVICE_TOKEN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	SessionIdleTTL  time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	CatalogPageSize int           `envconfig:"CATALOG_PAGE_SIZE" default:"100"`
	CatalogMaxPages int           `envconfig:"CATALOG_MAX_PAGES" default:"50"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return errors.New("backend url must be provided")
	}
	if c.CatalogPageSize <= 0 {
		return errors.New("catalog page size must be positive")
	}
	if c.CatalogMaxPages <= 0 {
		return errors.New("catalog max pages must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("session idle ttl must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
