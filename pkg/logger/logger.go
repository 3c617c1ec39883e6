// Package logger builds the structured slog.Logger used across rxcache:
// the cache manager, the eviction loop, the diagnostics sinks and the
// admin server all log through a logger built here so that log shape
// (JSON vs text, destination, rotation) is a single cross-cutting
// concern rather than something each package reinvents.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how to build a logger. It is embedded directly by
// rxconfig.Config so operators configure logging the same way they
// configure everything else (env vars / YAML via viper).
type Config struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`

	// Output selects the destination: stdout (default), stderr, or file.
	Output   string `mapstructure:"output" validate:"omitempty,oneof=stdout stderr file"`
	Filename string `mapstructure:"filename"`

	// Rotation settings, only consulted when Output == "file". Mirrors
	// lumberjack.Logger's own field names so the mapping is mechanical.
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// New builds a slog.Logger from Config. Never returns nil.
func New(cfg Config) *slog.Logger {
	writer := setupWriter(cfg)
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: parseLevel(cfg.Level) == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler)
}

// RotatingWriter builds the same kind of writer New uses from cfg (a
// lumberjack-backed rotated file when Output is "file"), so components
// that write a second stream with their own Config (the diagnostics
// FileSink, for example) don't have to build the lumberjack.Logger
// themselves. Each call returns a new writer.
func RotatingWriter(cfg Config) io.Writer {
	return setupWriter(cfg)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func setupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}
