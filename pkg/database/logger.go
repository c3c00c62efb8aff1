package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryLogger routes gorm's logging into zap. Only failed and slow
// queries are reported; SQL text is logged without bound values.
type slowQueryLogger struct {
	log       *zap.Logger
	threshold time.Duration
}

func newSlowQueryLogger(log *zap.Logger, threshold time.Duration) gormlogger.Interface {
	return &slowQueryLogger{log: log.Named("gorm"), threshold: threshold}
}

func (l *slowQueryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *slowQueryLogger) Info(context.Context, string, ...any) {}

func (l *slowQueryLogger) Warn(_ context.Context, msg string, args ...any) {
	l.log.Sugar().Warnf(msg, args...)
}

func (l *slowQueryLogger) Error(_ context.Context, msg string, args ...any) {
	l.log.Sugar().Errorf(msg, args...)
}

func (l *slowQueryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Error("query failed",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	case l.threshold > 0 && elapsed > l.threshold:
		sql, rows := fc()
		l.log.Warn("slow query",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	}
}
