// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds returned by Load and Validate.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// APIEndpoint is the path of the ingestion and query endpoint.
	APIEndpoint string `koanf:"api_endpoint"`

	// MaxBodyBytes caps the size of an ingested payload.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// DefaultLimit applies to queries without a limit.
	DefaultLimit int `koanf:"default_limit"`

	// TimeZone resolves date-only query bounds. Empty or "Local" uses the
	// server's local zone.
	TimeZone string `koanf:"time_zone"`

	// StoreDriver selects the metrics store: memory, file or redis.
	StoreDriver string `koanf:"store_driver"`

	// StoreMaxRecords is the FIFO retention cap.
	StoreMaxRecords int `koanf:"store_max_records"`

	// StoreFilePath is the JSON file of the file driver.
	StoreFilePath string `koanf:"store_file_path"`

	// Redis driver settings.
	RedisAddr            string `koanf:"redis_addr"`
	RedisPassword        string `koanf:"redis_password"`
	RedisDB              int    `koanf:"redis_db"`
	RedisKey             string `koanf:"redis_key"`
	RedisConnectAttempts uint   `koanf:"redis_connect_attempts"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		APIEndpoint:          "/api/metrics",
		MaxBodyBytes:         1 << 20,
		DefaultLimit:         100,
		StoreDriver:          DriverMemory,
		StoreMaxRecords:      10_000,
		StoreFilePath:        "data/metrics.json",
		RedisAddr:            "localhost:6379",
		RedisKey:             "pulse:metrics",
		RedisConnectAttempts: 5,
	}
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || strings.EqualFold(c.TimeZone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time_zone %q: %w", ErrInvalidConfig, c.TimeZone, err)
	}
	return loc, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !strings.HasPrefix(c.APIEndpoint, "/"):
		return fmt.Errorf("%w: api_endpoint must start with /", ErrInvalidConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	case c.DefaultLimit <= 0:
		return fmt.Errorf("%w: default_limit must be positive", ErrInvalidConfig)
	case c.StoreMaxRecords <= 0:
		return fmt.Errorf("%w: store_max_records must be positive", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverFile:
		if c.StoreFilePath == "" {
			return fmt.Errorf("%w: store_file_path required for the file driver", ErrInvalidConfig)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr required for the redis driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}

	_, err := c.Location()
	return err
}
