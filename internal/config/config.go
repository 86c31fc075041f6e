package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxHistoryCapacity bounds history.capacity. The buffer is allocated up front,
// so an oversized value would take the memory at startup.
const MaxHistoryCapacity = 1_000_000

// Config holds the gateway settings.
type Config struct {
	HTTPAddr          string        `yaml:"http_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Log     LogConfig     `yaml:"log"`
}

// HistoryConfig sizes the in-memory reading history.
type HistoryConfig struct {
	Capacity    int `yaml:"capacity"`
	RecentLimit int `yaml:"recent_limit"`
}

// MetricsConfig controls the exposition registry.
type MetricsConfig struct {
	MaxDevices        int  `yaml:"max_devices"`
	RuntimeCollectors bool `yaml:"runtime_collectors"`
}

// IngestConfig controls request classification.
type IngestConfig struct {
	CoercionAsClientError bool `yaml:"coercion_as_client_error"`
}

// LogConfig selects logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:          ":5000",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		History: HistoryConfig{
			Capacity:    1000,
			RecentLimit: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by SENSOR_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("SENSOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	var errs []error
	cfg.HTTPAddr = stringOr(getenv("HTTP_ADDR"), cfg.HTTPAddr)
	cfg.ReadHeaderTimeout = durationOr(getenv, "READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout, &errs)
	cfg.ShutdownTimeout = durationOr(getenv, "SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, &errs)
	cfg.History.Capacity = intOr(getenv, "HISTORY_CAPACITY", cfg.History.Capacity, &errs)
	cfg.History.RecentLimit = intOr(getenv, "RECENT_LIMIT", cfg.History.RecentLimit, &errs)
	cfg.Metrics.MaxDevices = intOr(getenv, "MAX_DEVICES", cfg.Metrics.MaxDevices, &errs)
	cfg.Metrics.RuntimeCollectors = boolOr(getenv, "RUNTIME_METRICS", cfg.Metrics.RuntimeCollectors, &errs)
	cfg.Ingest.CoercionAsClientError = boolOr(getenv, "COERCION_AS_CLIENT_ERROR", cfg.Ingest.CoercionAsClientError, &errs)
	cfg.Log.Level = stringOr(getenv("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.Format = stringOr(getenv("LOG_FORMAT"), cfg.Log.Format)
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: http_addr is required")
	}
	if c.History.Capacity <= 0 {
		return errors.New("config: history.capacity must be > 0")
	}
	if c.History.Capacity > MaxHistoryCapacity {
		return fmt.Errorf("config: history.capacity must be <= %d", MaxHistoryCapacity)
	}
	if c.History.RecentLimit <= 0 {
		return errors.New("config: history.recent_limit must be > 0")
	}
	if c.Metrics.MaxDevices < 0 {
		return errors.New("config: metrics.max_devices must be >= 0")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

func stringOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func intOr(getenv func(string) string, key string, fallback int, errs *[]error) int {
	value := getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return parsed
}

func boolOr(getenv func(string) string, key string, fallback bool, errs *[]error) bool {
	value := getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return parsed
}

func durationOr(getenv func(string) string, key string, fallback time.Duration, errs *[]error) time.Duration {
	value := getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return fallback
	}
	return parsed
}
