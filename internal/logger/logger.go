package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ally/pkg/logging"
)

// Logger is the logging surface the pipeline components depend on. The *wCtx
// variants pull tenant, message and stream fields out of the context so call
// sites never repeat them.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Fatalf(template string, args ...interface{})
	Sync() error

	DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
}

// ZapLogger is the production implementation. The service name is attached
// once at startup and stamped on every context-aware line.
type ZapLogger struct {
	*zap.SugaredLogger
	service string
}

func (l *ZapLogger) SetServiceName(name string) {
	l.service = name
}

func New(level string) (Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{SugaredLogger: zl.Sugar()}, nil
}

// NopLogger discards everything. Used in tests and as a safe default.
func NopLogger() Logger {
	return &ZapLogger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *ZapLogger) DebugwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, l.withContextFields(ctx, keysAndValues)...)
}

func (l *ZapLogger) InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Infow(msg, l.withContextFields(ctx, keysAndValues)...)
}

func (l *ZapLogger) WarnwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, l.withContextFields(ctx, keysAndValues)...)
}

func (l *ZapLogger) ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, l.withContextFields(ctx, keysAndValues)...)
}

func (l *ZapLogger) withContextFields(ctx context.Context, keysAndValues []interface{}) []interface{} {
	fields := logging.GetLogFields(ctx)
	if l.service != "" && logging.GetServiceName(ctx) == "" {
		fields = append(fields, "service_name", l.service)
	}
	return append(fields, keysAndValues...)
}
