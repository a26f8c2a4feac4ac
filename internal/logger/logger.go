package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const serviceName = "trafficalert"

// redacted replaces the value of any attribute named in secretKeys.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the log output.
var secretKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"client_secret": {},
	"api_key":       {},
	"authorization": {},
}

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
}

type contextKey string

const (
	// ContextKeyRequestID is the key for request ID in the context.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyOperation is the key for operation name in the context.
	ContextKeyOperation contextKey = "operation"
)

// contextKeys are copied onto the logger by WithContext, in this order.
var contextKeys = []contextKey{ContextKeyRequestID, ContextKeyOperation}

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing text through tint, or JSON when
// config.Format is "json". Every record carries the service name and
// instance ID.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       config.Level,
			AddSource:   true,
			ReplaceAttr: replaceAttr(true),
		})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:       config.Level,
			AddSource:   true,
			TimeFormat:  time.Kitchen,
			ReplaceAttr: replaceAttr(false),
		})
	}

	return &Logger{
		Logger: slog.New(handler).With(
			slog.String("service", serviceName),
			slog.String("instance_id", instanceID()),
		),
	}
}

// replaceAttr masks secret attributes and, for JSON output, renders the
// timestamp as RFC 3339.
func replaceAttr(rfc3339Time bool) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if _, secret := secretKeys[strings.ToLower(a.Key)]; secret {
			return slog.String(a.Key, redacted)
		}
		if rfc3339Time && len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.String(a.Key, a.Value.Time().Format(time.RFC3339))
		}
		return a
	}
}

// instanceID identifies this process in aggregated logs.
func instanceID() string {
	for _, key := range []string{"INSTANCE_ID", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}

	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromConfig builds a logger Config from LOG_LEVEL and LOG_FORMAT values.
// Unknown levels fall back to debug; APP_ENV=production forces JSON.
func FromConfig(logLevel, logFormat string) Config {
	config := Config{
		Level:  slog.LevelDebug,
		Format: "text",
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(logLevel))); err == nil {
		config.Level = level
	}

	if format := strings.ToLower(strings.TrimSpace(logFormat)); format != "" {
		config.Format = format
	}

	if os.Getenv("APP_ENV") == "production" {
		config.Format = "json"
	}

	return config
}

// WithContext returns a logger carrying the request ID and operation stored in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	for _, key := range contextKeys {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			logger = logger.With(slog.String(string(key), value))
		}
	}

	return &Logger{Logger: logger}
}

// WithComponent creates a new logger with a component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With(slog.String("component", component))}
}

// LogError logs err at error level with the request context of ctx.
func (l *Logger) LogError(ctx context.Context, err error, msg string, args ...interface{}) {
	l.WithContext(ctx).Error(msg, append([]interface{}{slog.String("error", err.Error())}, args...)...)
}

// LogOperation runs fn and logs its outcome and duration. Failures are
// logged at warn level; fn's error is returned unchanged.
func (l *Logger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	log := l.WithContext(ctx).With(slog.String("operation", operation))

	start := time.Now()
	err := fn()
	elapsed := slog.Duration("duration", time.Since(start))

	if err != nil {
		log.Warn("operation failed", elapsed, slog.String("error", err.Error()))
		return err
	}

	log.Debug("operation completed", elapsed)
	return nil
}
