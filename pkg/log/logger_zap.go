package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thep200/github-star-sweeper/cfg"
)

// runIDKey carries the sweep run id through contexts so every log line of a run can be correlated.
type runIDKey struct{}

// WithRunID returns a context whose log lines carry runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID extracts the run id stored by WithRunID.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ZapLogger adapts a zap logger to Logger. Its level can be changed at runtime.
type ZapLogger struct {
	logger *zap.Logger
	level  zap.AtomicLevel
}

func NewZapLogger(config cfg.Log) (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, fmt.Errorf("[ERROR][LOG] invalid log level %q: %w", config.Level, err)
		}
	}

	zapCfg := zap.NewProductionConfig()
	if config.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = level
	zapCfg.EncoderConfig.TimeKey = "ts"

	logger, err := zapCfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("[ERROR][LOG] build zap logger: %w", err)
	}
	return &ZapLogger{logger: logger, level: level}, nil
}

// NewZapLoggerFrom wraps an existing zap logger, mostly for tests with zaptest/observer.
func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger, level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// SetLevel changes the minimum level; used when the config file is reloaded.
func (l *ZapLogger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, severity, format string, args ...interface{}) {
	if !l.level.Enabled(level) {
		return
	}
	fields := make([]zap.Field, 0, 2)
	if severity != "" {
		fields = append(fields, zap.String("severity", severity))
	}
	if id := RunID(ctx); id != "" {
		fields = append(fields, zap.String("run_id", id))
	}
	if ce := l.logger.Check(level, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write(fields...)
	}
}

func (l *ZapLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.InfoLevel, "", format, args...)
}

func (l *ZapLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.WarnLevel, "alert", format, args...)
}

func (l *ZapLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.ErrorLevel, "", format, args...)
}

func (l *ZapLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.WarnLevel, "", format, args...)
}

func (l *ZapLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.DebugLevel, "", format, args...)
}

func (l *ZapLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.InfoLevel, "notice", format, args...)
}

// Critical and Emergency are logged at error level; zap's panic/fatal levels would end the process.
func (l *ZapLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.ErrorLevel, "critical", format, args...)
}

func (l *ZapLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, zapcore.ErrorLevel, "emergency", format, args...)
}
