// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Periscope
// binaries.
//
// Configuration is loaded from a single file specified by:
//   - the PERISCOPE_CONFIG environment variable, or
//   - a --config flag passed to the command.
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables never override
// config values. The only expansion performed is ${HOME}-style path
// variable substitution for portability.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Periscope viewer.
type Config struct {
	// Host configures how to reach the IDE host being mirrored.
	Host HostConfig `yaml:"host"`

	// Transport configures push-channel establishment and reconnect
	// behavior.
	Transport TransportConfig `yaml:"transport"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// HostConfig identifies the remote IDE host.
type HostConfig struct {
	// APIURL is the base URL of the host's request/response API
	// (e.g., "http://localhost:7430"). Required.
	APIURL string `yaml:"api_url"`

	// PushAddress is the host:port of the push channel listener
	// (e.g., "localhost:7431"). Empty disables the push channel
	// entirely; the client then polls over the API.
	PushAddress string `yaml:"push_address"`
}

// TransportConfig tunes the state sync client. Zero values fall back
// to the statesync package defaults.
type TransportConfig struct {
	// ConnectTimeout bounds a single push-channel connect attempt
	// before the client falls back to the request/response channel.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// InitialBackoff is the delay before the first push reconnect
	// attempt. Doubles per attempt up to MaxBackoff.
	InitialBackoff Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the reconnect delay.
	MaxBackoff Duration `yaml:"max_backoff"`

	// MaxAttempts is the number of consecutive failed reconnect
	// attempts after which the session is declared failed. Zero
	// means retry forever.
	MaxAttempts int `yaml:"max_attempts"`

	// PollInterval is the fallback polling cadence while the push
	// channel is down.
	PollInterval Duration `yaml:"poll_interval"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Output is a file path for JSON log records. Empty logs to
	// stderr in text format. Supports ${HOME}-style expansion.
	Output string `yaml:"output"`
}

// Duration wraps time.Duration with YAML unmarshalling from strings
// like "150ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with development defaults: a local mock
// IDE host and info-level logging.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			APIURL:      "http://localhost:7430",
			PushAddress: "localhost:7431",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the path named by the PERISCOPE_CONFIG
// environment variable.
func Load() (*Config, error) {
	path := os.Getenv("PERISCOPE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PERISCOPE_CONFIG environment variable not set; " +
			"set it to the path of your periscope.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, starting
// from Default and overlaying the file's values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.Log.Output = expandVars(cfg.Log.Output)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Host.APIURL == "" {
		return fmt.Errorf("host.api_url is required")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	if c.Transport.MaxAttempts < 0 {
		return fmt.Errorf("transport.max_attempts must not be negative")
	}
	return nil
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
