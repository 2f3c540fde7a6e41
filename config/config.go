// ABOUTME: Configuration loading and parsing for the tinyroute daemon.
// ABOUTME: Supports YAML and TOML files with env expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Router  RouterConfig  `yaml:"router" toml:"router"`
	Frame   FrameConfig   `yaml:"frame" toml:"frame"`
	Bridge  BridgeConfig  `yaml:"bridge" toml:"bridge"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener addresses. At least one of the two must be
// set; both may be, in which case the daemon serves on both transports.
type ServerConfig struct {
	TCPAddr    string `yaml:"tcp_addr" toml:"tcp_addr"`
	UnixSocket string `yaml:"unix_socket" toml:"unix_socket"`
}

// RouterConfig sizes the router's queue and the default mailbox capacity
// for connection agents.
type RouterConfig struct {
	QueueSize       int `yaml:"queue_size" toml:"queue_size"`
	MailboxCapacity int `yaml:"mailbox_capacity" toml:"mailbox_capacity"`
}

// FrameConfig bounds the wire frames accepted on the receive side.
type FrameConfig struct {
	MaxPayload int `yaml:"max_payload" toml:"max_payload"`
}

// BridgeConfig configures the optional uplink to a remote peer bus.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Address string `yaml:"address" toml:"address"` // bus address the bridge agent binds to

	// Reconnect policy: "constant" or "exponential".
	Reconnect string `yaml:"reconnect" toml:"reconnect"`

	Interval    time.Duration `yaml:"-" toml:"-"`
	MaxInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling.
	IntervalRaw    string `yaml:"interval" toml:"interval"`
	MaxIntervalRaw string `yaml:"max_interval" toml:"max_interval"`

	// Retry budget: "never", "forever", or "count".
	Retry      string `yaml:"retry" toml:"retry"`
	RetryCount int    `yaml:"retry_count" toml:"retry_count"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file and returns a parsed Config. The format
// is chosen by extension: .yaml/.yml or .toml. Environment variables in the
// format ${VAR_NAME} are expanded before parsing, and duration strings are
// parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.TCPAddr == "" && c.Server.UnixSocket == "" {
		return fmt.Errorf("server.tcp_addr or server.unix_socket is required")
	}

	if c.Bridge.Enabled {
		if c.Bridge.Addr == "" {
			return fmt.Errorf("bridge.addr is required when the bridge is enabled")
		}
		switch c.Bridge.Reconnect {
		case "", "constant", "exponential":
		default:
			return fmt.Errorf("bridge.reconnect must be \"constant\" or \"exponential\", got %q", c.Bridge.Reconnect)
		}
		switch c.Bridge.Retry {
		case "", "never", "forever":
		case "count":
			if c.Bridge.RetryCount < 1 {
				return fmt.Errorf("bridge.retry_count must be at least 1 when bridge.retry is \"count\"")
			}
		default:
			return fmt.Errorf("bridge.retry must be \"never\", \"forever\", or \"count\", got %q", c.Bridge.Retry)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bridge.IntervalRaw != "" {
		cfg.Bridge.Interval, err = time.ParseDuration(cfg.Bridge.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing bridge.interval %q: %w", cfg.Bridge.IntervalRaw, err)
		}
	}

	if cfg.Bridge.MaxIntervalRaw != "" {
		cfg.Bridge.MaxInterval, err = time.ParseDuration(cfg.Bridge.MaxIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing bridge.max_interval %q: %w", cfg.Bridge.MaxIntervalRaw, err)
		}
	}

	return nil
}
