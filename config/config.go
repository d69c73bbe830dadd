// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Body size limits accepted by BODY_SIZE_LIMIT.
const (
	DefaultBodySizeLimit int64 = 10 * 1024 * 1024
	MinBodySizeLimit     int64 = 1024
	MaxBodySizeLimit     int64 = 100 * 1024 * 1024
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string `yaml:"port"`
	BodySizeLimit  int64  `yaml:"body_size_limit"`
	SwaggerEnabled bool   `yaml:"swagger_enabled"`
}

// StorageConfig selects and configures the database backend
type StorageConfig struct {
	// Type is "sqlite" or "postgresql"
	Type       string                  `yaml:"type"`
	SQLite     SQLiteStorageConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLStorageConfig `yaml:"postgresql"`
}

// SQLiteStorageConfig holds SQLite-specific configuration
type SQLiteStorageConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLStorageConfig holds PostgreSQL-specific configuration
type PostgreSQLStorageConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// LogConfig controls the process logger
type LogConfig struct {
	// Format is "json" (default) or "pretty"
	Format string `yaml:"format"`
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Load reads configuration from .env, an optional config.yaml and the environment.
// Precedence, lowest first: defaults, config.yaml, .env, environment.
func Load() (*Config, error) {
	// .env never overrides variables that are already exported
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	if err := applyYAMLFile(cfg, "config.yaml"); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration Load starts from, before any file or
// environment is applied.
func Default() *Config {
	return buildDefaultConfig()
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: DefaultBodySizeLimit,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteStorageConfig{
				Path: "data/userapi.db",
			},
			PostgreSQL: PostgreSQLStorageConfig{
				MaxConns: 10,
			},
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

// applyYAMLFile merges path into cfg. A missing file is not an error.
func applyYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(expandString(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	v.AutomaticEnv()

	if v.IsSet("PORT") {
		cfg.Server.Port = v.GetString("PORT")
	}
	if v.IsSet("SWAGGER_ENABLED") {
		cfg.Server.SwaggerEnabled = v.GetBool("SWAGGER_ENABLED")
	}
	if v.IsSet("BODY_SIZE_LIMIT") {
		limit, err := parseBodySizeLimit(v.GetString("BODY_SIZE_LIMIT"))
		if err != nil {
			return fmt.Errorf("invalid BODY_SIZE_LIMIT: %w", err)
		}
		if limit > 0 {
			cfg.Server.BodySizeLimit = limit
		}
	}

	if v.IsSet("STORAGE_TYPE") {
		cfg.Storage.Type = v.GetString("STORAGE_TYPE")
	}
	if v.IsSet("SQLITE_PATH") {
		cfg.Storage.SQLite.Path = v.GetString("SQLITE_PATH")
	}
	if v.IsSet("POSTGRES_URL") {
		cfg.Storage.PostgreSQL.URL = v.GetString("POSTGRES_URL")
	}
	if v.IsSet("POSTGRES_MAX_CONNS") {
		n, err := strconv.Atoi(v.GetString("POSTGRES_MAX_CONNS"))
		if err != nil {
			return fmt.Errorf("invalid POSTGRES_MAX_CONNS: %w", err)
		}
		cfg.Storage.PostgreSQL.MaxConns = n
	}

	if v.IsSet("LOG_FORMAT") {
		cfg.Log.Format = v.GetString("LOG_FORMAT")
	}
	if v.IsSet("LOG_LEVEL") {
		cfg.Log.Level = v.GetString("LOG_LEVEL")
	}

	if v.IsSet("METRICS_ENABLED") {
		cfg.Metrics.Enabled = v.GetBool("METRICS_ENABLED")
	}
	if v.IsSet("METRICS_ENDPOINT") {
		cfg.Metrics.Endpoint = v.GetString("METRICS_ENDPOINT")
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// A placeholder without a default whose variable is unset or empty is left untouched.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholderPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]

		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasDefault {
			return def
		}
		return match
	})
}

var bodySizePattern = regexp.MustCompile(`^(\d+)([KkMm][Bb]?)?$`)

// ValidateBodySizeLimit checks a BODY_SIZE_LIMIT value such as "10M" or "512KB".
// Empty means "use the default".
func ValidateBodySizeLimit(s string) error {
	_, err := parseBodySizeLimit(s)
	return err
}

func parseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit format: %q (expected e.g. 1048576, 100K, 10M)", s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit number: %w", err)
	}

	var unit int64 = 1
	switch strings.ToUpper(strings.TrimSuffix(strings.ToUpper(m[2]), "B")) {
	case "K":
		unit = 1024
	case "M":
		unit = 1024 * 1024
	}
	if n > MaxBodySizeLimit/unit {
		return 0, fmt.Errorf("body size limit %q out of range [%d, %d]", s, MinBodySizeLimit, MaxBodySizeLimit)
	}
	n *= unit

	if n < MinBodySizeLimit || n > MaxBodySizeLimit {
		return 0, fmt.Errorf("body size limit %d out of range [%d, %d]", n, MinBodySizeLimit, MaxBodySizeLimit)
	}
	return n, nil
}
