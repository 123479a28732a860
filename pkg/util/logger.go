package util

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. Development gets readable text
// output at debug level; everything else emits JSON for ingestion.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "modelry")
}
