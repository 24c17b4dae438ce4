// Package logging configures the process-wide slog logger and the
// run and job scoped loggers derived from it.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Config holds logging configuration.
type Config struct {
	Format string `yaml:"format" json:"format"` // "json", "text" or "pretty"
	Level  string `yaml:"level" json:"level"`   // "debug", "info", "warn", "error"
	// File additionally receives every record as JSON, e.g. to keep the
	// job traces of a long threaded run.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// DefaultConfig returns text logging at info level.
func DefaultConfig() Config {
	return Config{
		Format: "text",
		Level:  "info",
	}
}

var (
	logger  *slog.Logger
	logFile *os.File
)

// Setup initializes the global logger, writing to stderr and to cfg.File
// when set.
func Setup(cfg Config) error {
	Close()
	if cfg.File == "" {
		SetupWriter(cfg, os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return fmt.Errorf("create log folder: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = f

	level := parseLevel(cfg.Level)
	install(fanout{
		newHandler(cfg.Format, level, os.Stderr),
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
	})
	return nil
}

// SetupWriter is Setup with an explicit destination and no log file.
func SetupWriter(cfg Config, w io.Writer) {
	install(newHandler(cfg.Format, parseLevel(cfg.Level), w))
}

// Close releases the log file, if any.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func install(h slog.Handler) {
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func newHandler(format string, level slog.Level, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "pretty":
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the configured logger, or the default if not set up.
func Get() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// ForRun returns a logger tagged with a run and its platform.
func ForRun(runID, platform string) *slog.Logger {
	return Get().With("run_id", runID, "platform", platform)
}

// ForJob returns a logger tagged with a ROM file and the source scraping it.
func ForJob(file, backend string) *slog.Logger {
	return Get().With("file", file, "backend", backend)
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }
