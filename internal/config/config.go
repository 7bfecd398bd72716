// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Redis configures the historian queue.
type Redis struct {
	Enabled   bool   `env:"REDIS_ENABLED"        envDefault:"true"`
	Addr      string `env:"REDIS_ADDR"           envDefault:"localhost:6379"`
	DB        int    `env:"REDIS_DB"             envDefault:"0"`
	QueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"timebid_actions"`
}

// Postgres configures the history database.
type Postgres struct {
	Enabled  bool   `env:"DATABASE_ENABLED"  envDefault:"true"`
	User     string `env:"POSTGRES_USER"     envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	Host     string `env:"PG_HOST"           envDefault:"localhost"`
	Port     int    `env:"PG_PORT"           envDefault:"5432"`
	Database string `env:"PG_DATABASE"       envDefault:"timebid"`
}

// ConnString returns the pgx connection URL.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

// Historian tunes the queue consumer.
type Historian struct {
	BatchSize     int `env:"HISTORIAN_BATCH_SIZE"        envDefault:"20"`
	FlushMS       int `env:"HISTORIAN_FLUSH_MS"          envDefault:"500"`
	InactivitySec int `env:"GAME_INACTIVITY_TIMEOUT_SEC" envDefault:"600"`
}

func (h Historian) FlushInterval() time.Duration {
	return time.Duration(h.FlushMS) * time.Millisecond
}

func (h Historian) Inactivity() time.Duration {
	return time.Duration(h.InactivitySec) * time.Second
}

// Config is everything the binaries read at startup.
type Config struct {
	Port             int           `env:"PORT"               envDefault:"8080"`
	CatalogDir       string        `env:"CATALOG_DIR"        envDefault:"data"`
	LogLevel         string        `env:"LOG_LEVEL"          envDefault:"info"`
	TokenExpireTime  string        `env:"TOKEN_EXPIRE_TIME"`
	TableIdleTimeout time.Duration `env:"TABLE_IDLE_TIMEOUT" envDefault:"6h"`

	Redis     Redis
	Postgres  Postgres
	Historian Historian
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Historian.BatchSize < 1 {
		return Config{}, fmt.Errorf("HISTORIAN_BATCH_SIZE must be at least 1, got %d", cfg.Historian.BatchSize)
	}
	return cfg, nil
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	logger.SetLevel(level)
	return logger, nil
}
