// Package logger provides the logging surface shared by every component.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for logging throughout the application.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

// Options controls how the zap logger is built.
type Options struct {
	// Debug lowers the level to debug.
	Debug bool
	// JSON selects the JSON encoder; the console encoder is used otherwise.
	JSON bool
	// Level overrides the level derived from Debug ("debug", "info", "warn", "error").
	Level string
}

// ZapLogger writes structured logs through zap.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a ZapLogger writing to stdout.
func New(opts Options) (*ZapLogger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}
	if opts.Level != "" {
		if err := level.Set(strings.ToLower(opts.Level)); err != nil {
			return nil, err
		}
	}

	config := zap.NewProductionConfig()
	if !opts.JSON {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.EncoderConfig.MessageKey = "message"

	base, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: base.Sugar()}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.sugar.Debugw(msg, keysAndValues...)
}

func (z *ZapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.sugar.Infow(msg, keysAndValues...)
}

func (z *ZapLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.sugar.Warnw(msg, keysAndValues...)
}

func (z *ZapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.sugar.Errorw(msg, keysAndValues...)
}

func (z *ZapLogger) With(keysAndValues ...interface{}) Logger {
	return &ZapLogger{sugar: z.sugar.With(keysAndValues...)}
}

// Sync flushes any buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

// SilentLogger discards all log messages.
// Used by tests so component output does not clutter `go test -v`.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (s *SilentLogger) Info(msg string, keysAndValues ...interface{})  {}
func (s *SilentLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (s *SilentLogger) Error(msg string, keysAndValues ...interface{}) {}
func (s *SilentLogger) With(keysAndValues ...interface{}) Logger       { return s }
func (s *SilentLogger) Sync() error                                    { return nil }
