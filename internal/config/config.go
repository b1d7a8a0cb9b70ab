package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// GraphQLURL is the Volume GraphQL endpoint.
	GraphQLURL string `yaml:"graphql_url"`

	// HTTPTimeout bounds every GraphQL request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// RequestsPerSecond throttles outgoing GraphQL requests. Zero disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Store selects the preference store backend: sqlite, postgres or memory.
	Store string `yaml:"store"`

	// DBPath is the SQLite file used when Store is sqlite.
	DBPath string `yaml:"db_path"`

	// DatabaseURL is the Postgres connection string used when Store is postgres.
	DatabaseURL string `yaml:"database_url"`

	// Port is the port of the local rendering-surface bridge.
	Port int `yaml:"port"`

	// PageSize is the number of items requested per feed page.
	PageSize int `yaml:"page_size"`

	// FollowedCap bounds the followed partition. Zero disables the cap.
	FollowedCap int `yaml:"followed_cap"`

	// ShoutoutCap limits shout-outs per article or magazine per install.
	ShoutoutCap int `yaml:"shoutout_cap"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		GraphQLURL:  "http://localhost:3000/graphql",
		HTTPTimeout: 30 * time.Second,
		Store:       StoreSQLite,
		DBPath:      "volume.db",
		Port:        8080,
		PageSize:    10,
		FollowedCap: 20,
		ShoutoutCap: 5,
		LogLevel:    "info",
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the YAML file at path, if any, and then applies environment
// overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("VOLUME_GRAPHQL_URL"); v != "" {
		c.GraphQLURL = v
	}
	if v := os.Getenv("VOLUME_STORE"); v != "" {
		c.Store = strings.ToLower(v)
	}
	if v := os.Getenv("VOLUME_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	var errs []error
	intVar := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = n
	}
	intVar("PORT", &c.Port)
	intVar("VOLUME_PAGE_SIZE", &c.PageSize)
	intVar("VOLUME_FOLLOWED_CAP", &c.FollowedCap)
	intVar("VOLUME_SHOUTOUT_CAP", &c.ShoutoutCap)

	if v := os.Getenv("VOLUME_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid VOLUME_REQUESTS_PER_SECOND: %w", err))
		} else {
			c.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("VOLUME_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid VOLUME_HTTP_TIMEOUT: %w", err))
		} else {
			c.HTTPTimeout = d
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if c.GraphQLURL == "" {
		return fmt.Errorf("VOLUME_GRAPHQL_URL is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.FollowedCap < 0 {
		return fmt.Errorf("followed cap must not be negative, got %d", c.FollowedCap)
	}
	if c.ShoutoutCap <= 0 {
		return fmt.Errorf("shoutout cap must be positive, got %d", c.ShoutoutCap)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
