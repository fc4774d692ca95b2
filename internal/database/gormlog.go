package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultSlowQuery = 200 * time.Millisecond
	maxLoggedSQL     = 2048
)

// queryLogger sends GORM output to slog. Not-found errors are expected
// lookups and stay quiet.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns a query logger at warn level.
func NewGormLogger(l *slog.Logger) logger.Interface {
	return &queryLogger{log: l, level: logger.Warn, slow: defaultSlowQuery}
}

func (q *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, data ...any) {
	q.printf(ctx, logger.Info, slog.LevelInfo, msg, data)
}

func (q *queryLogger) Warn(ctx context.Context, msg string, data ...any) {
	q.printf(ctx, logger.Warn, slog.LevelWarn, msg, data)
}

func (q *queryLogger) Error(ctx context.Context, msg string, data ...any) {
	q.printf(ctx, logger.Error, slog.LevelError, msg, data)
}

func (q *queryLogger) printf(ctx context.Context, floor logger.LogLevel, lvl slog.Level, msg string, data []any) {
	if q.level < floor {
		return
	}
	q.log.Log(ctx, lvl, fmt.Sprintf(msg, data...))
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		lvl   slog.Level
		msg   string
		extra []slog.Attr
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && q.level >= logger.Error:
		lvl, msg = slog.LevelError, "GORM query error"
		extra = append(extra, slog.String("error", err.Error()))
	case q.slow > 0 && elapsed > q.slow && q.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "GORM slow query"
		extra = append(extra, slog.Duration("threshold", q.slow))
	case q.level >= logger.Info:
		lvl, msg = slog.LevelInfo, "GORM query"
	default:
		return
	}

	sql, rows := fc()
	attrs := append([]slog.Attr{
		slog.String("sql", clipSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}, extra...)
	q.log.LogAttrs(ctx, lvl, msg, attrs...)
}

// clipSQL bounds statements carrying large literals, such as batched inserts.
func clipSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + fmt.Sprintf("... (%d bytes)", len(sql))
}
