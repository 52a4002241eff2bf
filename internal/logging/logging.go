// Package logging configures process-wide structured logging.
//
// Logs are JSON lines written to a size-rotated file under the index
// directory. In MCP stdio mode nothing may be written to stdout, so the
// only optional mirror target is stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr whether to also write to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

var (
	mu      sync.Mutex
	cleanup func()
)

// Init initializes file-based logging for the given index directory and
// installs the logger as the process default. Safe to call more than
// once; a later call closes the previous log file first.
func Init(indexPath string, level string) error {
	cfg := DefaultConfig()
	if indexPath != "" {
		cfg.FilePath = LogPathFor(indexPath)
	}
	if level != "" {
		cfg.Level = level
	}

	logger, cl, err := Setup(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
	cleanup = cl
	slog.SetDefault(logger)
	return nil
}

// Reset closes the log file and restores the default text logger.
// Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if cleanup != nil {
		cleanup()
		cleanup = nil
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Setup initializes file-based logging and returns the logger plus a
// cleanup function that closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}

	var output io.Writer = os.Stderr
	closer := func() {}

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		closer = func() { _ = writer.Close() }
		if cfg.WriteToStderr {
			output = io.MultiWriter(writer, os.Stderr)
		} else {
			output = writer
		}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	return slog.New(handler), closer, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
