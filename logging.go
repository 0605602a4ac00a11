package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// logFileName receives logs while a TUI owns the terminal
const logFileName = "peepcast-debug.log"

// parseLevel maps LOG_LEVEL values to a slog level
func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initLogging installs the default logger writing to w
func initLogging(w io.Writer) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)
}

// logToFile redirects logging to the debug log file so it does not corrupt
// the TUI. The returned func restores stderr.
func logToFile() func() {
	logFile, err := os.Create(logFileName)
	if err != nil {
		// Fall back to discarding if we can't create log file
		initLogging(io.Discard)
		return func() { initLogging(os.Stderr) }
	}

	initLogging(logFile)
	fmt.Fprintf(logFile, "=== peepcast started at %s ===\n", time.Now().Format(time.RFC3339))
	return func() {
		initLogging(os.Stderr)
		logFile.Close()
	}
}
