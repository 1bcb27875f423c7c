package observability

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

func init() {
	// JSON output by default; LOG_LEVEL picks the threshold
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

// Logger returns the default logger
func Logger() *slog.Logger {
	return defaultLogger
}

// LoggerWithRequest returns a logger carrying the request id under both
// request_id and trace_id so access and error lines can be joined.
func LoggerWithRequest(requestID string) *slog.Logger {
	return defaultLogger.With("request_id", requestID, "trace_id", requestID)
}

// Info logs at Info level
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Error logs at Error level
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Fatal logs at Error level and exits
func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}
