package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/cardforge/internal/config"
	"github.com/pitabwire/cardforge/model"
)

type loggerKey struct{}

// NewLogger builds the process logger. JSON goes to stdout for collectors;
// the console format is for designers running cardforged on a workstation.
//
// Levels:
//   - error: document write failures, panics, 5xx responses
//   - warn:  4xx responses, rejected saves, load failures, dangling references found on save
//   - info:  project load and reload, saves, creates and deletes
//   - debug: poll ticks, session transitions, verified token claims
func NewLogger(cfg config.ObservabilityConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if cfg.LogFormat == "console" {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build(zap.Fields(zap.String("service", "cardforged"), zap.String("version", Version)))
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger stored in ctx, or fallback.
func LoggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// RequestLogger returns the context logger tagged with the caller and the
// correlation and trace ids of the request.
func RequestLogger(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	logger := LoggerFrom(ctx, fallback)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		return logger
	}

	fields := []zap.Field{zap.String("correlation_id", rctx.CorrelationID)}
	if rctx.SubjectID != "" {
		fields = append(fields, zap.String("subject_id", rctx.SubjectID))
	}
	if rctx.TraceID != "" {
		fields = append(fields, zap.String("trace_id", rctx.TraceID))
	}
	return logger.With(fields...)
}

// EntityFields identifies one entity in a log line.
func EntityFields(c model.Collection, id string) []zap.Field {
	if id == "" {
		return []zap.Field{zap.String("collection", string(c))}
	}
	return []zap.Field{zap.String("collection", string(c)), zap.String("entity_id", id)}
}

// StatusLevel is the level a finished request with status is logged at.
func StatusLevel(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// loggedClaims are the token claims that may appear in logs verbatim.
var loggedClaims = map[string]bool{
	"sub":   true,
	"iss":   true,
	"aud":   true,
	"exp":   true,
	"iat":   true,
	"nbf":   true,
	"roles": true,
}

// RedactClaims returns a copy of claims fit for a debug log: registered
// claims and roles are kept, every other claim is replaced by "[REDACTED]".
func RedactClaims(claims map[string]any) map[string]any {
	if claims == nil {
		return nil
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		if loggedClaims[k] {
			out[k] = v
			continue
		}
		out[k] = "[REDACTED]"
	}
	return out
}

