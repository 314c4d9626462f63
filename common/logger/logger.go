package logger

import (
	"log/slog"
	"os"
)

// NewLogger builds the slog logger used for business-event logging
// (agent outcomes, outbox/consumer state transitions). Every entry carries
// service and env so log aggregation can filter by warehouse-service
// instance without parsing message text.
func NewLogger(serviceName string) *slog.Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	logger := slog.New(handler)

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return logger.With(slog.String("service", serviceName), slog.String("env", env))
}

func getLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
