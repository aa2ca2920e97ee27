package log

import (
	"context"
	"fmt"
	"time"

	"github.com/ugclab/ugc-pipeline/pkg/requestid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StructuredLogger emits one log line per step of an operation with the
// operation name, its parameters and the request id attached.
type StructuredLogger struct {
	name  string
	level zapcore.Level
	ctx   context.Context
}

func NewDebugLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.DebugLevel, ctx: context.Background()}
}

func NewInfoLogger(name string) *StructuredLogger {
	return &StructuredLogger{name: name, level: zapcore.InfoLevel, ctx: context.Background()}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *StructuredLogger {
	c := *l
	c.ctx = ctx
	return &c
}

func (l *StructuredLogger) Operation(name string) *OperationBuilder {
	return &OperationBuilder{logger: l, operation: name}
}

type OperationBuilder struct {
	logger    *StructuredLogger
	operation string
	fields    []zap.Field
}

func (b *OperationBuilder) WithString(key, value string) *OperationBuilder {
	b.fields = append(b.fields, zap.String(key, value))
	return b
}

func (b *OperationBuilder) WithInt(key string, value int) *OperationBuilder {
	b.fields = append(b.fields, zap.Int(key, value))
	return b
}

func (b *OperationBuilder) WithBool(key string, value bool) *OperationBuilder {
	b.fields = append(b.fields, zap.Bool(key, value))
	return b
}

func (b *OperationBuilder) WithParam(key string, value any) *OperationBuilder {
	b.fields = append(b.fields, zap.Any(key, value))
	return b
}

func (b *OperationBuilder) Build() *OperationTracer {
	fields := []zap.Field{zap.String("operation", b.operation)}
	if id := requestid.FromContext(b.logger.ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	fields = append(fields, b.fields...)

	return &OperationTracer{
		logger:    zap.L().Named(b.logger.name),
		level:     b.logger.level,
		operation: b.operation,
		fields:    fields,
		start:     time.Now(),
	}
}

// OperationTracer is the built logger of a single operation.
type OperationTracer struct {
	logger    *zap.Logger
	level     zapcore.Level
	operation string
	fields    []zap.Field
	start     time.Time
}

func (t *OperationTracer) Step(name string) *Entry {
	return t.entry(t.level, fmt.Sprintf("%s: %s", t.operation, name), zap.String("step", name))
}

func (t *OperationTracer) Success() *Entry {
	return t.entry(t.level, fmt.Sprintf("%s: success", t.operation), zap.Duration("duration", time.Since(t.start)))
}

func (t *OperationTracer) Error(err error) *Entry {
	return t.entry(zapcore.ErrorLevel, fmt.Sprintf("%s: failed", t.operation),
		zap.Error(err),
		zap.Duration("duration", time.Since(t.start)),
	)
}

func (t *OperationTracer) entry(level zapcore.Level, msg string, extra ...zap.Field) *Entry {
	fields := make([]zap.Field, 0, len(t.fields)+len(extra))
	fields = append(fields, t.fields...)
	fields = append(fields, extra...)
	return &Entry{logger: t.logger, level: level, msg: msg, fields: fields}
}

// Entry is a single line, written by Log.
type Entry struct {
	logger *zap.Logger
	level  zapcore.Level
	msg    string
	fields []zap.Field
}

func (e *Entry) WithString(key, value string) *Entry {
	e.fields = append(e.fields, zap.String(key, value))
	return e
}

func (e *Entry) WithInt(key string, value int) *Entry {
	e.fields = append(e.fields, zap.Int(key, value))
	return e
}

func (e *Entry) WithBool(key string, value bool) *Entry {
	e.fields = append(e.fields, zap.Bool(key, value))
	return e
}

func (e *Entry) WithParam(key string, value any) *Entry {
	e.fields = append(e.fields, zap.Any(key, value))
	return e
}

func (e *Entry) Log() {
	if ce := e.logger.Check(e.level, e.msg); ce != nil {
		ce.Write(e.fields...)
	}
}
