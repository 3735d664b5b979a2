package logging

import (
	"log/slog"
	"os"
)

// InitLogger initializes the process-wide structured logger.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithProject returns a logger with the project field set.
func WithProject(slug string) *slog.Logger {
	return slog.Default().With("project", slug)
}

// WithItem returns a logger with the item_id field set.
func WithItem(id string) *slog.Logger {
	return slog.Default().With("item_id", id)
}
