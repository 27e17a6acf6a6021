// Package logging builds the structured JSON loggers shared by both binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger writing to stdout at the given level.
func New(level, component string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, component)
}

// NewWithWriter returns a JSON logger writing one object per line to w.
// The timestamp key is "ts" so records line up with the rest of the JSON log stream.
func NewWithWriter(w io.Writer, level, component string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	})
	logger := slog.New(h)
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// Discard returns a logger that drops every record; useful as a nil-safe default.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
