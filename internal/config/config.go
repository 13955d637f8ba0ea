// Package config loads the runtime configuration from cabinet.yml, with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the Cabinet runtime configuration
type Config struct {
	// DefinitionsRoot is the trusted tree holding collection and action
	// definition units
	DefinitionsRoot string `mapstructure:"definitions_root"`

	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Query     QueryConfig     `mapstructure:"query"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabaseConfig selects the storage backend. Driver is "postgres",
// "sqlite3", or "memory".
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// CacheConfig configures the optional Redis record cache
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// QueryConfig bounds query work
type QueryConfig struct {
	MaxPageSize int `mapstructure:"max_page_size"`
}

// SnapshotsConfig controls pre-mutation snapshots
type SnapshotsConfig struct {
	// EnabledDefault applies to collections without an explicit policy
	EnabledDefault bool `mapstructure:"enabled_default"`

	// FailureFatal escalates snapshot failures to abort the mutation
	FailureFatal bool `mapstructure:"failure_fatal"`
}

// WatchConfig controls hot reload of the definitions tree
type WatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads cabinet.yml from the working directory. A missing file falls
// back to defaults.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads cabinet.yml from the given directory
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("definitions_root", "definitions")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_url", "localhost:6379")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("query.max_page_size", 200)
	v.SetDefault("snapshots.enabled_default", true)
	v.SetDefault("snapshots.failure_fatal", false)
	v.SetDefault("watch.enabled", false)

	v.SetConfigName("cabinet")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("CABINET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validate(c *Config) error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory", "postgres", "sqlite3":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required for driver %s", c.Database.Driver)
	}
	if c.Query.MaxPageSize < 1 {
		return fmt.Errorf("query.max_page_size must be positive")
	}
	return nil
}

// Addr returns the server listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
