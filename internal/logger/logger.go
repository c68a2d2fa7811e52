// Package logger owns the process-wide zap logger. Handlers, jobs and
// consumers fetch it with Get or WithContext instead of importing zap
// configuration themselves.
package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// RequestIDKey carries the echo request id into the request context.
	RequestIDKey ContextKey = "request_id"
	// UserIDKey carries the authenticated user id into the request context.
	UserIDKey ContextKey = "user_id"
)

var globalLogger *zap.Logger

// Initialize builds the global logger. "prod" and "production" select the
// JSON encoder at info level; anything else selects the console encoder at
// debug level.
func Initialize(env string) error {
	var (
		cfg zap.Config
	)
	if env == "prod" || env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.MessageKey = "message"
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}
	globalLogger = l
	zap.ReplaceGlobals(l)
	return nil
}

// Set installs l as the global logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	globalLogger = l
	zap.ReplaceGlobals(l)
}

// Get returns the global logger, or a no-op logger before Initialize.
func Get() *zap.Logger {
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// Sync flushes buffered entries. Call before exit.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

// WithContext returns a child logger carrying request_id and user_id when
// they are present in ctx.
func WithContext(ctx context.Context) *zap.Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		l = l.With(zap.String("request_id", id))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint64); ok && uid != 0 {
		l = l.With(zap.Uint64("user_id", uid))
	}
	return l
}

// IsSensitiveField reports whether a request field must never be logged.
func IsSensitiveField(name string) bool {
	switch name {
	case "password", "new_password", "recovery_phrase", "phrase",
		"password_key", "Password-Key", "session_token", "access_token",
		"code", "code_verifier", "secret_key", "data":
		return true
	}
	return false
}
