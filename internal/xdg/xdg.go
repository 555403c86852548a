// Package xdg provides helpers to resolve XDG Base Directory paths for
// openagent-terminal. It implements the XDG Base Directory specification for
// determining appropriate locations for configuration files, state data, and
// the runtime directory holding the backend socket.
//
// The package handles fallback to traditional locations when XDG environment
// variables are not set and ensures proper permissions for security-sensitive
// directories like configuration storage.
package xdg

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the XDG config directory for openagent-terminal.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/openagent-terminal when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "openagent-terminal")
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}

// StateDir returns the XDG state directory for openagent-terminal, used for
// log files. The directory is created with private permissions (0700) if
// missing. It falls back to ~/.local/state/openagent-terminal when
// XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "openagent-terminal")
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}

// RuntimeDir returns the directory where the backend socket lives.
// It prefers XDG_RUNTIME_DIR (owner-only by convention) and falls back to the
// system temp directory when unset.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}
