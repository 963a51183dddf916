package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// SQLLogConfig tunes the gorm-to-zap bridge.
type SQLLogConfig struct {
	Level              gormlogger.LogLevel
	SlowQueryThreshold time.Duration
	SkipNotFound       bool
}

// DefaultSQLLogConfig keeps statement logging at warn so steady-state
// traffic stays quiet; slow queries surface at 200ms.
func DefaultSQLLogConfig() SQLLogConfig {
	return SQLLogConfig{
		Level:              gormlogger.Warn,
		SlowQueryThreshold: 200 * time.Millisecond,
	}
}

// SQLLogger adapts gorm's logging interface onto the context-aware zap
// logger, so queries carry the same request/actor fields as the rest of
// the request's log lines.
type SQLLogger struct {
	cfg SQLLogConfig
}

func NewSQLLogger(cfg SQLLogConfig) *SQLLogger {
	return &SQLLogger{cfg: cfg}
}

func (l *SQLLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *SQLLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *SQLLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *SQLLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *SQLLogger) emit(ctx context.Context, gate gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < gate {
		return
	}
	fields := []zap.Field{zap.String("component", "db")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("detail", data))
	}
	if entry := FromContext(ctx).Check(level, msg); entry != nil {
		entry.Write(fields...)
	}
}

// Trace routes finished statements by outcome: errors at error level
// (record-not-found optionally skipped, it is an expected read outcome),
// slow statements at warn, everything else at debug when statement
// logging is on.
func (l *SQLLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)

	switch {
	case err != nil && l.cfg.Level >= gormlogger.Error && !(notFound && l.cfg.SkipNotFound):
		l.writeStatement(ctx, zapcore.ErrorLevel, fc, elapsed, err)
	case l.cfg.SlowQueryThreshold > 0 && elapsed > l.cfg.SlowQueryThreshold && l.cfg.Level >= gormlogger.Warn:
		l.writeStatement(ctx, zapcore.WarnLevel, fc, elapsed, nil)
	case l.cfg.Level >= gormlogger.Info:
		l.writeStatement(ctx, zapcore.DebugLevel, fc, elapsed, nil)
	}
}

// ParamsFilter drops bound values so license numbers, emails and token
// hashes never reach the log stream.
func (l *SQLLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	_ = ctx
	_ = params
	return sql, nil
}

func (l *SQLLogger) writeStatement(ctx context.Context, level zapcore.Level, fc func() (string, int64), elapsed time.Duration, err error) {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)

	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("statement", sql),
		zap.String("kind", statementKind(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if entry := FromContext(ctx).Check(level, "db.statement"); entry != nil {
		entry.Write(fields...)
	}
}

// statementKind extracts the leading SQL verb, looking through CTE
// prefixes, for the kind label on log lines.
func statementKind(sql string) string {
	rest := strings.ToUpper(sql)
	for _, word := range strings.Fields(rest) {
		switch strings.Trim(word, "();") {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return strings.ToLower(strings.Trim(word, "();"))
		case "WITH":
			continue
		}
	}
	return "other"
}

var _ gormlogger.Interface = (*SQLLogger)(nil)
