package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Table drivers.
const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
)

// Session marker stores.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the application configuration, read from the environment.
type Config struct {
	AppPort int    `env:"APP_PORT" envDefault:"8080"`
	LogFile string `env:"LOG_FILE" envDefault:"app.log"`
	Debug   bool   `env:"DEBUG"`

	Backend  BackendConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	TableDriver  string `env:"TABLE_DRIVER" envDefault:"rest"`
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"`

	SessionTimeout    time.Duration `env:"SESSION_TIMEOUT" envDefault:"15m"`
	EmailDomain       string        `env:"EMAIL_DOMAIN" envDefault:"app.local"`
	ActionLogLimit    int           `env:"ACTION_LOG_LIMIT" envDefault:"100"`
	KuspListLimit     int           `env:"KUSP_LIST_LIMIT" envDefault:"200"`
	TsuExpirationDays int           `env:"TSU_EXPIRATION_DAYS" envDefault:"14"`
}

// BackendConfig points at the hosted backend.
type BackendConfig struct {
	URL           string        `env:"BACKEND_URL"`
	AnonKey       string        `env:"BACKEND_ANON_KEY"`
	AdminFunction string        `env:"BACKEND_ADMIN_FUNCTION" envDefault:"admin-users"`
	Timeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
}

// DBConfig contains PostgreSQL connection settings for the postgres driver.
type DBConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"ugibdd"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
}

// DSN renders the settings as a key/value connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig contains Redis settings for the session marker store.
type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"ugibdd:"`
}

// LoadConfig reads an optional .env file and then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	switch c.TableDriver {
	case DriverREST:
		if c.Backend.URL == "" || c.Backend.AnonKey == "" {
			return errors.New("BACKEND_URL and BACKEND_ANON_KEY are required")
		}
	case DriverPostgres:
		if c.Backend.URL == "" {
			return errors.New("BACKEND_URL is required for authentication")
		}
	default:
		return fmt.Errorf("unknown TABLE_DRIVER %q", c.TableDriver)
	}
	switch c.SessionStore {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	if c.SessionTimeout <= 0 {
		return errors.New("SESSION_TIMEOUT must be positive")
	}
	return nil
}
