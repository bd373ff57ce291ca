// Package logging builds the slog logger of an application from its configuration.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Swind/go-ui-tasks/config"
)

// ParseLevel maps debug, info, warn and error to slog levels, case-insensitive.
// Anything else reports false.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Setup creates a logger writing to stdout.
func Setup(cfg config.LogConfig) *slog.Logger {
	return New(os.Stdout, cfg)
}

// New creates a JSON or text logger writing to w at the configured level.
// An invalid level falls back to info with a warning.
func New(w io.Writer, cfg config.LogConfig) *slog.Logger {
	level, ok := ParseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}
	return logger
}
