// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

// Backend selects where campaign state is persisted.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config carries everything the binaries need, filled from the environment.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Ingestion
	DataDir string `env:"DATA_DIR" envDefault:"data"`

	// State persistence
	StatePath       string `env:"STATE_PATH" envDefault:"state/campaigns.json"`
	FilePersistence bool   `env:"FILE_PERSISTENCE" envDefault:"true"`
	StoreBackend    string `env:"STORE_BACKEND" envDefault:"file"`

	// Postgres backend
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBName     string `env:"DB_NAME" envDefault:"dripleopard"`

	// Delivery transport. An empty AMQP_URL keeps delivery in-process.
	AMQPURL   string `env:"AMQP_URL" envDefault:""`
	QueueName string `env:"QUEUE_NAME" envDefault:"drip_sends"`
	ServerURL string `env:"SERVER_URL" envDefault:"http://localhost:8080"`

	// Scheduling knobs
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"30m"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
	StartBuffer   time.Duration `env:"START_BUFFER" envDefault:"500ms"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE" envDefault:""`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendPostgres {
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// DatabaseURL builds the Postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}
