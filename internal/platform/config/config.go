// Package config loads service configuration from the environment so main
// stays lean. A .env file is honored when present; real environment
// variables win.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string `env:"VIGIL_ADDR" envDefault:":8080"`
	LogLevel string `env:"VIGIL_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"VIGIL_LOG_JSON" envDefault:"true"`

	JWTSigningKey string `env:"VIGIL_JWT_SIGNING_KEY,required"`
	JWTIssuer     string `env:"VIGIL_JWT_ISSUER" envDefault:"vigil"`

	DatabaseURL   string `env:"VIGIL_DATABASE_URL,required"`
	MigrationsDir string `env:"VIGIL_MIGRATIONS_DIR" envDefault:"db/migrations"`

	// RedisURL is optional; without it the approval surface falls back to
	// the in-process store and /readyz skips the redis check.
	RedisURL string `env:"VIGIL_REDIS_URL"`

	// KafkaBrokers is optional; without it notifications are dropped.
	KafkaBrokers string `env:"VIGIL_KAFKA_BROKERS"`
	KafkaTopic   string `env:"VIGIL_KAFKA_TOPIC" envDefault:"vigil.notifications"`

	SweepInterval   time.Duration `env:"VIGIL_SWEEP_INTERVAL" envDefault:"0"`
	SweepLimit      int           `env:"VIGIL_SWEEP_LIMIT" envDefault:"100"`
	BulkParallelism int           `env:"VIGIL_BULK_PARALLELISM" envDefault:"8"`
	ApprovalTTL     time.Duration `env:"VIGIL_APPROVAL_TTL" envDefault:"15m"`

	ShutdownTimeout time.Duration `env:"VIGIL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (if any) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
