// Package util provides shared utility functions for logging, retries, and
// rate limiting.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured logger using log/slog at the specified
// level, writing to w (os.Stdout when w is nil). Supported levels: "debug",
// "info", "warn", "error"; unrecognised levels default to "info". The format
// is "text" or "json"; unrecognised formats default to "json".
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slevel = slog.LevelDebug
	case "info":
		slevel = slog.LevelInfo
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}

	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
