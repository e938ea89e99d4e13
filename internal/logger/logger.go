// Package logger configures the process-wide slog logger for councild.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/opencouncil/councild/internal/config"
)

// New builds a *slog.Logger from the Logging config. JSON to stdout by
// default; format "text" switches to the human-readable handler for local
// runs. Every record carries a "service" attribute so councild lines are
// filterable when logs from the gateway and the workers are interleaved.
func New(cfg config.Logging) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", cfg.Service)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
