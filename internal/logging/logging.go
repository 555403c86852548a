// Package logging initializes the file-backed structured logger and formats
// errors for user display. Stdout and stderr belong to the terminal UI, so all
// diagnostic output goes to a log file under the XDG state directory. The rest
// of the application receives *slog.Logger handles from here; no package logs
// to the terminal directly.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"openagent/terminal/internal/xdg"
)

var (
	mu       sync.Mutex
	root     *slog.Logger
	logFile  *os.File
	levelVar = new(slog.LevelVar)
	initDone bool
)

// DefaultLogPath returns the default log file path.
func DefaultLogPath() (string, error) {
	dir, err := xdg.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "openagent.log"), nil
}

// Init opens the log file at path and installs a text handler on it.
// Calling Init more than once is a no-op.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f
	root = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
	root.Info("logger initialized", "path", path)
	return nil
}

// SetLevel adjusts the minimum level by name ("debug", "info", "warn", "error").
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// L returns the root logger. Before Init it returns a logger that discards
// everything, so early callers never write to the terminal.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return root
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	root = nil
	initDone = false
}
