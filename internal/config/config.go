package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the chatsync CLI configuration.
type Config struct {
	Gateway      GatewayConfig `yaml:"gateway"`
	Auth         AuthConfig    `yaml:"auth"`
	History      HistoryConfig `yaml:"history"`
	Logging      LoggingConfig `yaml:"logging"`
	Conversation string        `yaml:"conversation"`
}

// GatewayConfig holds the real-time and REST endpoints.
type GatewayConfig struct {
	Endpoint    string `yaml:"endpoint"`
	APIEndpoint string `yaml:"api_endpoint"`
	SendBuffer  int    `yaml:"send_buffer"`

	HandshakeTimeout    time.Duration `yaml:"-"`
	HandshakeTimeoutRaw string        `yaml:"handshake_timeout"`
}

// AuthConfig holds the bearer token and, optionally, the local user id.
type AuthConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// HistoryConfig controls how much history is loaded on open.
type HistoryConfig struct {
	PageSize int `yaml:"page_size"`
	Limit    int `yaml:"limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Endpoint:         "ws://localhost:8000/ws",
			HandshakeTimeout: 10 * time.Second,
		},
		History: HistoryConfig{PageSize: 50, Limit: 500},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over Default. ${VAR} references are expanded from
// the environment before parsing. Validate is left to the caller so flags
// can be applied first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Gateway.HandshakeTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Gateway.HandshakeTimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing handshake_timeout %q: %w", cfg.Gateway.HandshakeTimeoutRaw, err)
		}
		cfg.Gateway.HandshakeTimeout = d
	}

	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" when unset.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if c.Gateway.Endpoint == "" {
		return fmt.Errorf("gateway.endpoint is required")
	}
	if c.Gateway.HandshakeTimeout < 0 {
		return fmt.Errorf("gateway.handshake_timeout must not be negative")
	}
	if c.History.PageSize < 0 || c.History.Limit < 0 {
		return fmt.Errorf("history.page_size and history.limit must not be negative")
	}
	if c.History.PageSize > 0 && c.History.Limit > 0 && c.History.PageSize > c.History.Limit {
		return fmt.Errorf("history.page_size (%d) exceeds history.limit (%d)", c.History.PageSize, c.History.Limit)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
