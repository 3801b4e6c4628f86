package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload"
)

// Config is the full process configuration, read from the environment with
// .env overrides via godotenv.
type Config struct {
	Port int `env:"PORT" envDefault:"8080"`

	DBHost     string `env:"CRASH_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"CRASH_DB_PORT" envDefault:"5432"`
	DBDatabase string `env:"CRASH_DB_DATABASE" envDefault:"crashdb"`
	DBUsername string `env:"CRASH_DB_USERNAME" envDefault:"postgres"`
	DBPassword string `env:"CRASH_DB_PASSWORD" envDefault:"postgres"`
	DBSchema   string `env:"CRASH_DB_SCHEMA" envDefault:"public"`

	RedisAddr     string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PriceAPIURL   string        `env:"PRICE_API_URL" envDefault:"https://api.coingecko.com/api/v3/simple/price"`
	PriceTimeout  time.Duration `env:"PRICE_TIMEOUT" envDefault:"2s"`
	PriceCacheTTL time.Duration `env:"PRICE_CACHE_TTL" envDefault:"5m"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// DatabaseURL builds the Postgres connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBDatabase, c.DBSchema)
}
