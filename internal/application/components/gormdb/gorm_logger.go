package gormdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
)

// gormLogger bridges gorm's logger to the global zap logger.
type gormLogger struct {
	tag           string
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(tag string, cfg *Config) logger.Interface {
	lvl := logger.Warn
	slow := 200 * time.Millisecond
	switch strings.ToLower(cfg.LogLevel) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info", "debug":
		lvl = logger.Info
	}
	if cfg.SlowThreshold > 0 {
		slow = cfg.SlowThreshold
	}
	return &gormLogger{tag: "[" + tag + "] ", logLevel: lvl, slowThreshold: slow}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.logLevel = level
	return &nl
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		logging.Infof(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		logging.Warnf(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		logging.Errorf(ctx, l.tag+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		sql, rows := fc()
		logging.Errorf(ctx, "%serror elapsed=%s rows=%d sql=%s err=%v", l.tag, elapsed, rows, sql, err)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		sql, rows := fc()
		logging.Warnf(ctx, "%sslow elapsed=%s threshold=%s rows=%d sql=%s", l.tag, elapsed, l.slowThreshold, rows, sql)
	case l.logLevel >= logger.Info:
		sql, rows := fc()
		logging.Debugf(ctx, "%selapsed=%s rows=%d sql=%s", l.tag, elapsed, rows, sql)
	}
}
