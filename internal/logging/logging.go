// Package logging configures the process-wide structured logger from the
// configuration's verbosity setting (spec §6).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Configure builds a text-handler slog.Logger at the given level, writing
// to stderr, and installs it as slog's default. Trimmed from teacher's
// Configure: this module's schema carries only a single verbosity string,
// not teacher's structured/JSON-format/PID/extra-fields knobs.
func Configure(verbosity string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(io.Writer(os.Stderr), &slog.HandlerOptions{Level: parseLevel(verbosity)}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
