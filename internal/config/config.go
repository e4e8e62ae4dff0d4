package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"stacingest/internal/errors"
)

// EnvPrefix marks environment variables that override file configuration.
// Nested keys use a double underscore: STACINGEST_SERVER__PORT -> server.port
const EnvPrefix = "STACINGEST_"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `koanf:"server" validate:"required"`
	Database   DatabaseConfig   `koanf:"database"`
	Services   ServicesConfig   `koanf:"services"`
	Extensions ExtensionsConfig `koanf:"extensions"`
	Auth       AuthConfig       `koanf:"auth"`
	Log        LogConfig        `koanf:"log"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `koanf:"port" validate:"required,numeric"`
	GinMode string `koanf:"gin_mode" validate:"oneof=debug release test"`
}

// DatabaseConfig holds the session store connection. An empty URL keeps
// sessions in memory only.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"omitempty,oneof=postgres sqlite"`
	URL    string `koanf:"url"`
}

// ServicesConfig locates the external ingest API (PR creation, retrieval,
// COG validation).
type ServicesConfig struct {
	IngestAPIURL string        `koanf:"ingest_api_url" validate:"omitempty,url"`
	Timeout      time.Duration `koanf:"timeout"`
}

// ExtensionsConfig tunes the extension schema resolver
type ExtensionsConfig struct {
	CacheSize    int           `koanf:"cache_size" validate:"min=1,max=10000"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

// AuthConfig is passed to the authorization layer at startup. With Disabled
// set every request runs as a test identity holding TestTenants/TestScopes.
type AuthConfig struct {
	Disabled    bool     `koanf:"disabled"`
	TestTenants []string `koanf:"test_tenants"`
	TestScopes  []string `koanf:"test_scopes"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// Defaults returns the built-in configuration layer. The unprefixed platform
// variables (PORT, DATABASE_URL, LOG_LEVEL, ...) feed this layer.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":              getEnvOrDefault("PORT", "8080"),
		"server.gin_mode":          getEnvOrDefault("GIN_MODE", "debug"),
		"database.driver":          getEnvOrDefault("DB_DRIVER", "postgres"),
		"database.url":             getEnvOrDefault("DATABASE_URL", ""),
		"services.ingest_api_url":  getEnvOrDefault("INGEST_API_URL", ""),
		"services.timeout":         getEnvDurationOrDefault("INGEST_API_TIMEOUT", 30*time.Second),
		"extensions.cache_size":    getEnvIntOrDefault("EXTENSION_CACHE_SIZE", 128),
		"extensions.cache_ttl":     getEnvDurationOrDefault("EXTENSION_CACHE_TTL", 15*time.Minute),
		"extensions.fetch_timeout": getEnvDurationOrDefault("EXTENSION_FETCH_TIMEOUT", 0),
		"auth.disabled":            getEnvBoolOrDefault("AUTH_DISABLED", false),
		"auth.test_tenants":        []string{},
		"auth.test_scopes":         []string{},
		"log.level":                strings.ToUpper(getEnvOrDefault("LOG_LEVEL", "INFO")),
	}
}

// Load reads configuration from defaults, an optional JSON file named by
// STACINGEST_CONFIG, and STACINGEST_* environment variables, in increasing
// priority, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvPrefix + "CONFIG"))
}

// LoadFile is Load with an explicit config file path ("" for none).
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(err, "failed to set default %s", key)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("config file %s not readable: %v", path, err))
		}
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment overrides")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}
	cfg.Log.Level = strings.ToUpper(cfg.Log.Level)

	if err := validateConfig(&cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return &cfg, nil
}

// envTransform converts environment variable names to config keys
// Example: STACINGEST_EXTENSIONS__CACHE_SIZE -> extensions.cache_size
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func validateConfig(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(errors.ConfigInvalid(err.Error()), "invalid configuration")
	}
	if config.Database.URL != "" && config.Database.Driver == "" {
		return errors.ConfigInvalid("database driver is required when a database URL is set")
	}
	if config.Services.Timeout < 0 {
		return errors.ConfigInvalid("services timeout cannot be negative")
	}
	if config.Extensions.CacheTTL <= 0 {
		return errors.ConfigInvalid("extension cache TTL must be positive")
	}
	if !config.Auth.Disabled && (len(config.Auth.TestTenants) > 0 || len(config.Auth.TestScopes) > 0) {
		return errors.ConfigInvalid("test tenants and scopes only apply when auth is disabled")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
