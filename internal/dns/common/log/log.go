package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global Logger = newZapLogger(false, zapcore.InfoLevel) // default to prod/info

// SetLogger replaces the global logger instance.
func SetLogger(l Logger) {
	global = l
}

// GetLogger returns the current global logger instance.
func GetLogger() Logger {
	return global
}

// Logger is the logging sink handed to every relay component.
type Logger interface {
	Info(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

// Configure builds a logger for env and level and installs it globally.
func Configure(env, level string) error {
	l, err := NewZapLogger(env, level)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// NewZapLogger returns a zap backed Logger without touching the global one.
// Any env other than "prod" selects the colored development console encoder.
func NewZapLogger(env, level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return newZapLogger(env != "prod", lvl), nil
}

// With returns a Logger that adds fields to every entry written through it.
// Fields passed at the call site win over the bound ones.
func With(l Logger, fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	if zl, ok := l.(*zapLogger); ok {
		return &zapLogger{base: zl.base.With(zapFields(fields)...)}
	}
	bound := make(map[string]any, len(fields))
	for k, v := range fields {
		bound[k] = v
	}
	return &boundLogger{next: l, fields: bound}
}

// Info logs at info level using the global logger.
func Info(fields map[string]any, msg string) {
	global.Info(fields, msg)
}

// Error logs at error level using the global logger.
func Error(fields map[string]any, msg string) {
	global.Error(fields, msg)
}

// Debug logs at debug level using the global logger.
func Debug(fields map[string]any, msg string) {
	global.Debug(fields, msg)
}

// Warn logs at warn level using the global logger.
func Warn(fields map[string]any, msg string) {
	global.Warn(fields, msg)
}

// Panic logs at panic level using the global logger.
func Panic(fields map[string]any, msg string) {
	global.Panic(fields, msg)
}

// Fatal logs at fatal level using the global logger.
func Fatal(fields map[string]any, msg string) {
	global.Fatal(fields, msg)
}

type zapLogger struct {
	base *zap.Logger
}

func newZapLogger(dev bool, level zapcore.Level) Logger {
	var config zap.Config
	if dev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "msg"
	config.EncoderConfig.LevelKey = "level"

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &zapLogger{base: logger}
}

func (l *zapLogger) Info(fields map[string]any, msg string) {
	l.base.Info(msg, zapFields(fields)...)
}

func (l *zapLogger) Error(fields map[string]any, msg string) {
	l.base.Error(msg, zapFields(fields)...)
}

func (l *zapLogger) Debug(fields map[string]any, msg string) {
	if !l.base.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.base.Debug(msg, zapFields(fields)...)
}

func (l *zapLogger) Warn(fields map[string]any, msg string) {
	l.base.Warn(msg, zapFields(fields)...)
}

func (l *zapLogger) Panic(fields map[string]any, msg string) {
	l.base.Panic(msg, zapFields(fields)...)
}

func (l *zapLogger) Fatal(fields map[string]any, msg string) {
	l.base.Fatal(msg, zapFields(fields)...)
}

func zapFields(m map[string]any) []zap.Field {
	fields := make([]zap.Field, 0, len(m))
	for k, v := range m {
		if err, ok := v.(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// boundLogger decorates a non-zap Logger with fixed fields.
type boundLogger struct {
	next   Logger
	fields map[string]any
}

func (b *boundLogger) merge(fields map[string]any) map[string]any {
	out := make(map[string]any, len(b.fields)+len(fields))
	for k, v := range b.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (b *boundLogger) Info(f map[string]any, msg string)  { b.next.Info(b.merge(f), msg) }
func (b *boundLogger) Error(f map[string]any, msg string) { b.next.Error(b.merge(f), msg) }
func (b *boundLogger) Debug(f map[string]any, msg string) { b.next.Debug(b.merge(f), msg) }
func (b *boundLogger) Warn(f map[string]any, msg string)  { b.next.Warn(b.merge(f), msg) }
func (b *boundLogger) Panic(f map[string]any, msg string) { b.next.Panic(b.merge(f), msg) }
func (b *boundLogger) Fatal(f map[string]any, msg string) { b.next.Fatal(b.merge(f), msg) }

type noopLogger struct{}

func (n *noopLogger) Info(map[string]any, string)  {}
func (n *noopLogger) Error(map[string]any, string) {}
func (n *noopLogger) Debug(map[string]any, string) {}
func (n *noopLogger) Warn(map[string]any, string)  {}
func (n *noopLogger) Panic(map[string]any, string) {}
func (n *noopLogger) Fatal(map[string]any, string) {}

// NewNoopLogger returns a Logger that discards all log messages.
func NewNoopLogger() Logger {
	return &noopLogger{}
}
