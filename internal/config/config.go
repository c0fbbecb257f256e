// Package config loads tool configuration from .tia/config.json and
// analysis profiles from PROFILES.toml at the repository root.
package config

import (
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the tia tool configuration (v1 schema)
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	// DefaultProfile names the profile used when none is requested
	DefaultProfile string `json:"defaultProfile" mapstructure:"defaultProfile"`

	// SelectionBias is the default uncertain-site policy
	SelectionBias string `json:"selectionBias" mapstructure:"selectionBias"`

	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// CacheConfig controls the persistent fingerprint cache
type CacheConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:        1,
		DefaultProfile: "",
		SelectionBias:  "fail-open",
		Cache: CacheConfig{
			Enabled: false,
			Path:    ".tia/cache.db",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .tia/config.json
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("selectionBias", "fail-open")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", ".tia/cache.db")
	v.SetDefault("logging.format", "human")
	v.SetDefault("logging.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".tia"))

	if err := v.ReadInConfig(); err != nil {
		// If config doesn't exist, return default config
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
