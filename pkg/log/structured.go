package log

import (
	"context"
	"time"

	"github.com/chaptermaker/chaptermaker/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger builds operation tracers. Every builder method returns a copy so a
// logger stored on a service can be shared between goroutines.
type StructuredLogger struct {
	name      string
	level     zapcore.Level
	ctx       context.Context
	operation string
	fields    []zap.Field
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	c := *l
	c.fields = append(make([]zap.Field, 0, len(l.fields)+2), l.fields...)
	return &c
}

func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	c := l.clone()
	c.ctx = ctx
	return c
}

func (l *StructuredLogger) Operation(op string) *StructuredLogger {
	c := l.clone()
	c.operation = op
	return c
}

func (l *StructuredLogger) WithString(key, value string) *StructuredLogger {
	c := l.clone()
	c.fields = append(c.fields, zap.String(key, value))
	return c
}

func (l *StructuredLogger) WithInt(key string, value int) *StructuredLogger {
	c := l.clone()
	c.fields = append(c.fields, zap.Int(key, value))
	return c
}

func (l *StructuredLogger) WithBool(key string, value bool) *StructuredLogger {
	c := l.clone()
	c.fields = append(c.fields, zap.Bool(key, value))
	return c
}

func (l *StructuredLogger) WithParam(key string, value any) *StructuredLogger {
	c := l.clone()
	c.fields = append(c.fields, zap.Any(key, value))
	return c
}

func (l *StructuredLogger) Build() *OperationTracer {
	fields := append([]zap.Field{}, l.fields...)
	if l.operation != "" {
		fields = append(fields, zap.String("operation", l.operation))
	}
	if l.ctx != nil {
		if id := requestid.FromContext(l.ctx); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
	}
	return &OperationTracer{
		name:   l.name,
		level:  l.level,
		fields: fields,
		start:  time.Now(),
	}
}

// OperationTracer emits the log lines of a single operation.
type OperationTracer struct {
	name   string
	level  zapcore.Level
	fields []zap.Field
	start  time.Time
}

func (t *OperationTracer) entry(level zapcore.Level, msg string, extra ...zap.Field) *LogEntry {
	fields := append(append([]zap.Field{}, t.fields...), extra...)
	return &LogEntry{name: t.name, level: level, msg: msg, fields: fields}
}

func (t *OperationTracer) Step(name string) *LogEntry {
	return t.entry(t.level, "step", zap.String("step", name))
}

func (t *OperationTracer) Success() *LogEntry {
	return t.entry(t.level, "operation succeeded", zap.Duration("elapsed", time.Since(t.start)))
}

func (t *OperationTracer) Error(err error) *LogEntry {
	return t.entry(zapcore.ErrorLevel, "operation failed", zap.Error(err), zap.Duration("elapsed", time.Since(t.start)))
}

func (t *OperationTracer) Warn(err error) *LogEntry {
	return t.entry(zapcore.WarnLevel, "operation degraded", zap.Error(err))
}

type LogEntry struct {
	name   string
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *LogEntry) WithString(key, value string) *LogEntry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *LogEntry) WithInt(key string, value int) *LogEntry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *LogEntry) WithBool(key string, value bool) *LogEntry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *LogEntry) WithParam(key string, value any) *LogEntry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *LogEntry) Log() {
	logger := zap.L().Named(e.name).WithOptions(zap.AddCallerSkip(1))
	if ce := logger.Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
