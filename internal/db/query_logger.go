package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLogger "github.com/nexe/nexe-backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryLogger sends gorm's query log through pkg/logger: failed queries at
// error, queries slower than slow at warn, the rest at debug.
type queryLogger struct {
	log   *appLogger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

// newQueryLogger logs to l, or to the global logger when l is nil.
func newQueryLogger(l *appLogger.Logger, slow time.Duration) gormlogger.Interface {
	return &queryLogger{log: l, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) logger() *appLogger.Logger {
	if q.log != nil {
		return q.log
	}
	return appLogger.Get()
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *q
	cp.level = level
	return &cp
}

func (q *queryLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if q.level >= gormlogger.Info {
		q.logger().Info(fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if q.level >= gormlogger.Warn {
		q.logger().Warn(fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if q.level >= gormlogger.Error {
		q.logger().Error(fmt.Sprintf(msg, args...), nil)
	}
}

// Trace is called by gorm after every statement. Record-not-found is an expected
// answer for cart and product lookups, not a failure.
func (q *queryLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	fields := func() map[string]interface{} {
		sql, rows := fc()
		return map[string]interface{}{
			"sql":        sql,
			"rows":       rows,
			"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
		}
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && q.level >= gormlogger.Error:
		q.logger().Error("Query failed", err, fields())
	case q.slow > 0 && elapsed > q.slow && q.level >= gormlogger.Warn:
		f := fields()
		f["threshold_ms"] = q.slow.Milliseconds()
		q.logger().Warn("Slow query", f)
	case q.level >= gormlogger.Info:
		q.logger().Debug("Query", fields())
	}
}
