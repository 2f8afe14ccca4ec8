package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/lubesync/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	LubeLogger  LubeLoggerConfig `toml:"lubelogger"`
	Logging     LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LubeLoggerConfig contains the remote service connection and refresh
// behavior. Credentials are owned by the session manager at runtime.
type LubeLoggerConfig struct {
	URL            string        `toml:"url" validate:"required,url"`
	Username       string        `toml:"username" validate:"required"`
	Password       string        `toml:"password" validate:"required"`
	UpdateInterval time.Duration `toml:"update_interval"` // Nominal automatic refresh interval
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-call timeout; a timed-out call is a network error for that category only
	Concurrency    int           `toml:"concurrency"`     // Max simultaneous category fetches per cycle
	RateLimit      int           `toml:"rate_limit"`      // Requests per second against the remote service
	BackoffInitial time.Duration `toml:"backoff_initial"` // First delay after a hard-failure cycle
	BackoffMax     time.Duration `toml:"backoff_max"`     // Cap for the hard-failure delay
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// Credentials extracts the session manager's credential set.
func (c LubeLoggerConfig) Credentials() models.Credentials {
	return models.Credentials{
		BaseURL:  c.URL,
		Username: c.Username,
		Password: c.Password,
	}
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		LubeLogger: LubeLoggerConfig{
			UpdateInterval: 5 * time.Minute,
			RequestTimeout: 10 * time.Second,
			Concurrency:    4,
			RateLimit:      10,
			BackoffInitial: 30 * time.Second,
			BackoffMax:     30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration starting from defaults, applying each
// file in order (later files override earlier ones), then environment
// overrides, then validates the result.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides lets credentials be supplied outside the config file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LUBESYNC_URL"); v != "" {
		config.LubeLogger.URL = v
	}
	if v := os.Getenv("LUBESYNC_USERNAME"); v != "" {
		config.LubeLogger.Username = v
	}
	if v := os.Getenv("LUBESYNC_PASSWORD"); v != "" {
		config.LubeLogger.Password = v
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.LubeLogger.UpdateInterval < 10*time.Second {
		return fmt.Errorf("invalid configuration: update_interval must be at least 10s")
	}
	if c.LubeLogger.Concurrency < 1 {
		return fmt.Errorf("invalid configuration: concurrency must be at least 1")
	}
	return nil
}
