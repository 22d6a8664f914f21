package logging

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Thread-safe global logger holder with a no-op default.
var (
	mu           sync.RWMutex
	globalLogger Logger = noopLogger{}
)

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...zap.Field) {}
func (noopLogger) Info(context.Context, string, ...zap.Field)  {}
func (noopLogger) Warn(context.Context, string, ...zap.Field)  {}
func (noopLogger) Error(context.Context, string, ...zap.Field) {}
func (n noopLogger) With(...zap.Field) Logger                  { return n }
func (noopLogger) Sync() error                                 { return nil }

// SetGlobalLogger sets the global logger (overwrite allowed). nil resets to no-op.
func SetGlobalLogger(l Logger) {
	mu.Lock()
	if l == nil {
		globalLogger = noopLogger{}
	} else {
		globalLogger = l
	}
	mu.Unlock()
}

// L returns the current global logger.
func L() Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	return l
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) { L().Debug(ctx, msg, fields...) }
func Info(ctx context.Context, msg string, fields ...zap.Field)  { L().Info(ctx, msg, fields...) }
func Warn(ctx context.Context, msg string, fields ...zap.Field)  { L().Warn(ctx, msg, fields...) }
func Error(ctx context.Context, msg string, fields ...zap.Field) { L().Error(ctx, msg, fields...) }

func Debugf(ctx context.Context, format string, args ...interface{}) {
	L().Debug(ctx, fmt.Sprintf(format, args...))
}
func Infof(ctx context.Context, format string, args ...interface{}) {
	L().Info(ctx, fmt.Sprintf(format, args...))
}
func Warnf(ctx context.Context, format string, args ...interface{}) {
	L().Warn(ctx, fmt.Sprintf(format, args...))
}
func Errorf(ctx context.Context, format string, args ...interface{}) {
	L().Error(ctx, fmt.Sprintf(format, args...))
}

// UnderlyingZap exposes the *zap.Logger when the logging component is installed (gorm bridge uses it).
func UnderlyingZap() *zap.Logger {
	if lc, ok := L().(*LoggerComponent); ok {
		return lc.zapLogger
	}
	return nil
}
