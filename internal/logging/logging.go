// Package logging configures the process-wide structured logger: JSON
// records to stderr, one per line, with secret-shaped attribute values
// redacted at the handler boundary.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Luiz-Frias/semcode/internal/redact"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Writer overrides the output stream (defaults to stderr).
	Writer io.Writer
}

// Setup builds the logger and installs it as slog default.
func Setup(cfg Config) *slog.Logger {
	out := cfg.Writer
	if out == nil {
		out = os.Stderr
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Int64("timestampMs", attr.Value.Time().UnixMilli())
			case slog.MessageKey:
				attr.Key = "message"
				return attr
			}
			if attr.Value.Kind() == slog.KindString {
				attr.Value = slog.StringValue(redact.Value(attr.Key, attr.Value.String()))
			}
			return attr
		},
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
