// Package logging configures the process-wide logger from a --log-level
// flag, following the daemon's ConfigureLogging pattern: slog is the
// default logger, and stdlib log.Printf calls are redirected through it so
// they are never silenced by a stricter filter.
package logging

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strings"
)

// parseLevel converts a log level string to slog.Level. Unrecognized values
// fall back to info; config.Parse already accepts only
// debug/info/warn/error at parse time.
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

// Configure sets up the global slog logger at the given level and redirects
// stdlib log.Printf output through it. Call once at startup before running
// a Node.
func Configure(level string) {
	lvl := parseLevel(level)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))

	log.SetOutput(&bridgeWriter{level: lvl})
	log.SetFlags(0)
}

// bridgeWriter adapts stdlib log.Printf output to slog at a fixed level.
type bridgeWriter struct {
	level slog.Level
}

func (w *bridgeWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimRight(string(p), "\n")
	slog.Log(context.Background(), w.level, msg)
	return len(p), nil
}
