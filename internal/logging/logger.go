// Package logging builds the zap logger used across the service and carries
// it through request contexts.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey struct{}

var (
	defaultLogger     *zap.Logger
	defaultLoggerOnce sync.Once
)

type Config struct {
	Level      zapcore.Level
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console overrides stdout, mainly for tests.
	Console io.Writer
}

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level,
// falling back to info.
func ParseLevel(s string) zapcore.Level {
	l, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// New returns a logger writing human-readable lines to the console and,
// when FilePath is set, JSON lines to a rotating file.
func New(conf Config) *zap.Logger {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.CallerKey = ""

	console := conf.Console
	if console == nil {
		console = os.Stdout
	}
	level := zap.NewAtomicLevelAt(conf.Level)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(console), level),
	}

	if conf.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   conf.FilePath,
			MaxSize:    orDefault(conf.MaxSizeMB, 100),
			MaxBackups: orDefault(conf.MaxBackups, 3),
			MaxAge:     orDefault(conf.MaxAgeDays, 28),
			Compress:   true,
		}
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// DefaultLogger is an info-level console logger shared by code that has no
// logger of its own.
func DefaultLogger() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = New(Config{Level: zapcore.InfoLevel})
	})
	return defaultLogger
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return logger
	}
	return DefaultLogger()
}
