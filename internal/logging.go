// Package internal holds small helpers shared by the rdt and rrpc packages
// and the cmd harnesses: slice reuse, CLI logger setup, connection
// fingerprints, the metrics HTTP endpoint, and SO_REUSEADDR listeners.
package internal

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewCLILogger builds the slog.Logger every harness binary uses. levelName
// is one of "debug", "info", "warn", "error" (case-insensitive); an unknown
// value falls back to "info".
func NewCLILogger(levelName string) *slog.Logger {
	h := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLevel(levelName),
		TimeFormat: time.TimeOnly,
	})
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
