// components/logging/logger_component.go
package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// 全局函数 + 组件方法 + log
const callerSkip = 3

var errNegativeMaxAge = errors.New("logging.rotate_config.max_age must be >= 0")

// Logger 日志记录器接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...zap.Field)
	Info(ctx context.Context, msg string, fields ...zap.Field)
	Warn(ctx context.Context, msg string, fields ...zap.Field)
	Error(ctx context.Context, msg string, fields ...zap.Field)
	With(fields ...zap.Field) Logger
	Sync() error
}

// LoggerComponent Zap日志组件
type LoggerComponent struct {
	*core.BaseComponent
	config    *LoggingConfig
	zapLogger *zap.Logger
}

// NewLoggerComponent 创建新的Zap日志组件
func NewLoggerComponent(cfg *LoggingConfig) *LoggerComponent {
	return &LoggerComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_LOGGING),
		config:        cfg,
	}
}

// Start builds the zap core and installs the component as global logger.
func (lc *LoggerComponent) Start(ctx context.Context) error {
	if err := lc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	ws, err := lc.buildWriteSyncer()
	if err != nil {
		return fmt.Errorf("failed to create write syncer: %w", err)
	}
	lc.zapLogger = zap.New(
		zapcore.NewCore(lc.buildEncoder(), ws, parseLevel(lc.config.Level)),
		zap.AddCaller(),
		zap.AddCallerSkip(callerSkip),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	SetGlobalLogger(lc)
	Info(ctx, "logger started",
		zap.String("level", lc.config.Level),
		zap.String("format", lc.config.Format),
		zap.String("output", lc.config.Output),
	)
	return nil
}

func (lc *LoggerComponent) Stop(ctx context.Context) error {
	if lc.zapLogger != nil {
		Info(ctx, "logger stopping")
		_ = lc.zapLogger.Sync()
	}
	SetGlobalLogger(nil)
	return lc.BaseComponent.Stop(ctx)
}

func (lc *LoggerComponent) HealthCheck() error {
	if err := lc.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if lc.zapLogger == nil {
		return fmt.Errorf("zap logger is not initialized")
	}
	return nil
}

func (lc *LoggerComponent) buildEncoder() zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if strings.EqualFold(lc.config.Format, "console") {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func (lc *LoggerComponent) buildWriteSyncer() (zapcore.WriteSyncer, error) {
	switch strings.ToLower(lc.config.Output) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "file":
		if lc.config.FileConfig == nil {
			return nil, fmt.Errorf("file_config is required when output is 'file'")
		}
		if err := os.MkdirAll(lc.config.FileConfig.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return lc.fileSyncer(filepath.Join(lc.config.FileConfig.Dir, lc.config.FileConfig.Filename+".log"))
	default:
		// 非关键字当作文件路径
		return lc.fileSyncer(lc.config.Output)
	}
}

func (lc *LoggerComponent) fileSyncer(path string) (zapcore.WriteSyncer, error) {
	if rc := lc.config.RotateConfig; rc != nil && rc.Enabled {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    rc.MaxSizeMB,
			MaxBackups: rc.MaxBackups,
			MaxAge:     int(rc.MaxAge.Hours() / 24),
			Compress:   rc.Compress,
			LocalTime:  true,
		}), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return zapcore.AddSync(f), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (lc *LoggerComponent) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	lc.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (lc *LoggerComponent) Info(ctx context.Context, msg string, fields ...zap.Field) {
	lc.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (lc *LoggerComponent) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	lc.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (lc *LoggerComponent) Error(ctx context.Context, msg string, fields ...zap.Field) {
	lc.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// With 创建带有附加字段的新logger
func (lc *LoggerComponent) With(fields ...zap.Field) Logger {
	if lc.zapLogger == nil {
		return lc
	}
	return &LoggerComponent{
		BaseComponent: lc.BaseComponent,
		config:        lc.config,
		zapLogger:     lc.zapLogger.With(fields...),
	}
}

func (lc *LoggerComponent) Sync() error {
	if lc.zapLogger != nil {
		return lc.zapLogger.Sync()
	}
	return nil
}

func (lc *LoggerComponent) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	if lc.zapLogger == nil {
		return
	}
	if traceID := extractTraceID(ctx); traceID != "" && !hasField(fields, consts.KEY_TraceID) {
		fields = append([]zap.Field{zap.String(consts.KEY_TraceID, traceID)}, fields...)
	}
	if ce := lc.zapLogger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// extractTraceID 优先 OTel span, 其次 ctx 中的 trace_id 字符串
func extractTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	if v, ok := ctx.Value(consts.KEY_TraceID).(string); ok {
		return v
	}
	return ""
}

func hasField(fields []zap.Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}
