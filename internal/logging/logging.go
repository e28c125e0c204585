package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	// Level overrides LOG_LEVEL when set.
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Fallback is used when neither Level nor LOG_LEVEL is set.
	Fallback slog.Level
	// Output defaults to stderr.
	Output io.Writer
}

// Init builds the process logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	level := opts.Fallback

	name := opts.Level
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	if l, ok := ParseLevel(name); ok {
		level = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "dev", "development", "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "production", "prod":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
