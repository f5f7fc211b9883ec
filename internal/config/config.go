// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete switchboard configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig holds connection and routing behavior configuration
type GatewayConfig struct {
	// Environment tags connection identifiers ("staging", "prod", or empty)
	Environment string `yaml:"environment"`

	// MaxMessageBytes bounds inbound WebSocket frames (0 = transport default)
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// ReplayCapacity bounds the replay guard's tracked keys
	ReplayCapacity int `yaml:"replay_capacity"`

	WriteTimeout time.Duration `yaml:"-"`
	ReplayTTL    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	WriteTimeoutRaw string `yaml:"write_timeout"`
	ReplayTTLRaw    string `yaml:"replay_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values the file may omit.
func (c *Config) applyDefaults() {
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 10 * time.Second
	}
	if c.Gateway.ReplayTTL == 0 {
		c.Gateway.ReplayTTL = 5 * time.Minute
	}
	if c.Gateway.ReplayCapacity == 0 {
		c.Gateway.ReplayCapacity = 100_000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Gateway.Environment {
	case "", "staging", "prod":
	default:
		return fmt.Errorf("gateway.environment must be \"staging\", \"prod\", or empty, got %q", c.Gateway.Environment)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.WriteTimeoutRaw != "" {
		cfg.Gateway.WriteTimeout, err = time.ParseDuration(cfg.Gateway.WriteTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing write_timeout %q: %w", cfg.Gateway.WriteTimeoutRaw, err)
		}
	}

	if cfg.Gateway.ReplayTTLRaw != "" {
		cfg.Gateway.ReplayTTL, err = time.ParseDuration(cfg.Gateway.ReplayTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay_ttl %q: %w", cfg.Gateway.ReplayTTLRaw, err)
		}
	}

	return nil
}
