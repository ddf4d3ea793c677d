package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LevelSummary sits between INFO and WARN. Quiet mode filters out everything
// below it, so run summaries survive while step-by-step detail does not.
const LevelSummary = slog.Level(2)

var L *slog.Logger // Global logger instance

func init() {
	// Usable before InitLogger runs (tests, early startup).
	L = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// InitLogger initializes the global logger.
// Call this once at application startup, after loading config.
func InitLogger(logLevelStr string, quiet bool) {
	initLogger(os.Stdout, logLevelStr, quiet)
}

func initLogger(w io.Writer, logLevelStr string, quiet bool) {
	var level slog.Level
	switch strings.ToLower(logLevelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		slog.Warn("Invalid LOG_LEVEL specified, defaulting to INFO", "configuredLevel", logLevelStr)
	}
	if quiet && level < LevelSummary {
		level = LevelSummary
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSummary {
					a.Value = slog.StringValue("SUMMARY")
				}
			}
			return a
		},
	}

	L = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(L)
	L.Debug("Logger initialized", "level", level.String(), "quiet", quiet)
}

// Summary logs a message that is emitted even in quiet mode.
func Summary(msg string, args ...any) {
	L.Log(context.Background(), LevelSummary, msg, args...)
}
