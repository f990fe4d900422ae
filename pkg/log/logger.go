package log

import (
	"context"
	"fmt"
	"strings"

	"github.com/thep200/github-star-sweeper/cfg"
)

type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Alert(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
	Critical(ctx context.Context, format string, args ...interface{})
	Emergency(ctx context.Context, format string, args ...interface{})
}

func NewLogger(logger Logger) (Logger, error) {
	if logger == nil {
		return nil, fmt.Errorf("[ERROR][LOG] logger is nil")
	}
	return logger, nil
}

// NewFromConfig picks the logger driver named in config: "console" (default) or "zap".
func NewFromConfig(config cfg.Log) (Logger, error) {
	switch strings.ToLower(config.Driver) {
	case "", "console", "csl":
		return NewCslLogger()
	case "zap":
		return NewZapLogger(config)
	default:
		return nil, fmt.Errorf("[ERROR][LOG] unsupported log driver: %s", config.Driver)
	}
}

// Sync flushes loggers that buffer entries (zap). Other drivers write through and are left alone.
func Sync(logger Logger) error {
	if syncer, ok := logger.(interface{ Sync() error }); ok {
		return syncer.Sync()
	}
	return nil
}
