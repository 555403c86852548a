// Copyright (c) 2025 OpenAgent Terminal
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and persists the TOML configuration file under the
// XDG config directory. A missing file is not an error; defaults apply.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"openagent/terminal/internal/xdg"
)

// EnvSocket overrides the socket path when set.
const EnvSocket = "OPENAGENT_SOCKET"

// defaultSocketName is the socket file the backend creates in the runtime dir.
const defaultSocketName = "openagent-terminal.sock"

// Config is the full on-disk configuration.
type Config struct {
	LogLevel   string     `toml:"log_level"`
	Agent      Agent      `toml:"agent"`
	Connection Connection `toml:"connection"`
}

// Agent configures query behavior.
type Agent struct {
	Model string `toml:"model"`
	// RequireApproval gates tool executions behind an interactive prompt.
	RequireApproval bool `toml:"require_approval"`
}

// Connection configures the backend channel.
type Connection struct {
	// Socket is an explicit socket path. Empty means use the runtime dir.
	Socket                string `toml:"socket"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	BackoffBaseMS         int    `toml:"backoff_base_ms"`
	MaxAttempts           int    `toml:"max_attempts"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		LogLevel: "info",
		Agent: Agent{
			Model:           "default",
			RequireApproval: true,
		},
		Connection: Connection{
			RequestTimeoutSeconds: 30,
			BackoffBaseMS:         200,
			MaxAttempts:           5,
		},
	}
}

// Path returns the config file location, creating the config dir if needed.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file from its default location. A missing file
// yields Default() without error.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file from an explicit path. Unset fields fall back
// to defaults; a missing file yields Default() without error.
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config as TOML with private permissions.
func (c Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// SocketPath resolves the backend socket path. Precedence: the explicit
// override (CLI flag), the OPENAGENT_SOCKET environment variable, the
// configured path, then the runtime directory default.
func (c Config) SocketPath(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(EnvSocket); env != "" {
		return env
	}
	if c.Connection.Socket != "" {
		return c.Connection.Socket
	}
	return filepath.Join(xdg.RuntimeDir(), defaultSocketName)
}

// RequestTimeout returns the configured per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	if c.Connection.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Connection.RequestTimeoutSeconds) * time.Second
}

// BackoffBase returns the configured reconnect backoff base delay.
func (c Config) BackoffBase() time.Duration {
	if c.Connection.BackoffBaseMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Connection.BackoffBaseMS) * time.Millisecond
}

// MaxRetries returns the configured reconnect attempt cap.
func (c Config) MaxRetries() int {
	if c.Connection.MaxAttempts <= 0 {
		return 5
	}
	return c.Connection.MaxAttempts
}
