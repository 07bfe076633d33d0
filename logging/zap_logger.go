package logging

import (
	"fmt"

	"go.uber.org/zap"
)

type LogLevel string

const (
	Development LogLevel = "development" // debug and above, console encoding
	Production  LogLevel = "production"  // info and above, JSON encoding
)

// ZapLogger adapts a sugared zap logger to Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a logger for level, tagging every entry with the process name.
func NewZapLogger(level LogLevel, processName string) (Logger, error) {
	var config zap.Config
	switch level {
	case Production:
		config = zap.NewProductionConfig()
	case Development:
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	base, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return FromZap(base.With(zap.String("process", processName))), nil
}

// FromZap wraps an existing zap logger, for instance one writing to an observer core in tests.
func FromZap(z *zap.Logger) Logger {
	return &ZapLogger{sugar: z.Sugar()}
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return FromZap(zap.NewNop())
}

func (z *ZapLogger) Debug(msg string, tags ...any) { z.sugar.Debugw(msg, tags...) }

func (z *ZapLogger) Info(msg string, tags ...any) { z.sugar.Infow(msg, tags...) }

func (z *ZapLogger) Warn(msg string, tags ...any) { z.sugar.Warnw(msg, tags...) }

func (z *ZapLogger) Error(msg string, tags ...any) { z.sugar.Errorw(msg, tags...) }

// Fatal logs and then exits the process.
func (z *ZapLogger) Fatal(msg string, tags ...any) { z.sugar.Fatalw(msg, tags...) }

func (z *ZapLogger) With(tags ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(tags...)}
}

func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
