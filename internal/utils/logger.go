package utils

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = newLogger(zapcore.InfoLevel, "console")

func newLogger(level zapcore.Level, format string) *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoding string
	switch format {
	case "json":
		encoding = "json"
	default:
		encoding = "console"
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// ConfigureLogger replaces the process logger. level is a zap level name
// ("debug", "info", ...); format is "console" or "json".
func ConfigureLogger(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger = newLogger(lvl, format)
	return nil
}

// SetLogger allows setting a custom logger.
func SetLogger(l *zap.Logger) {
	logger = l.Sugar()
}

func SyncLogger() {
	_ = logger.Sync()
}

func format(message string, args []interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(message, args...)
	}
	return message
}

func LogInfo(component, message string, args ...interface{}) {
	logger.Infow(format(message, args), "component", component)
}

func LogSuccess(component, message string, args ...interface{}) {
	logger.Infow(format(message, args), "component", component, "outcome", "success")
}

func LogWarning(component, message string, args ...interface{}) {
	logger.Warnw(format(message, args), "component", component)
}

func LogError(component, message string, err error) {
	if err != nil {
		logger.Errorw(message, "component", component, "error", err)
		return
	}
	logger.Errorw(message, "component", component)
}

func LogDebug(component, message string, args ...interface{}) {
	logger.Debugw(format(message, args), "component", component)
}

func LogRequest(method, path, requestID string) {
	logger.Infow("request", "method", method, "path", path, "request_id", requestID)
}

func LogResponse(path string, statusCode int, duration time.Duration) {
	fields := []interface{}{"path", path, "status", statusCode, "duration", duration}
	switch {
	case statusCode >= 500:
		logger.Errorw("response", fields...)
	case statusCode >= 400:
		logger.Warnw("response", fields...)
	default:
		logger.Infow("response", fields...)
	}
}

func LogDB(operation, query string) {
	logger.Debugw(query, "component", "DB", "operation", operation)
}
