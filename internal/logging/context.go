package logging

import (
	"context"
	"maps"
)

type ctxKey struct{ name string }

var (
	correlationKey = ctxKey{"correlation"}
	loggerKey      = ctxKey{"logger"}
	fieldsKey      = ctxKey{"fields"}
)

// WithCorrelationIDCtx tags every entry logged under ctx with id.
func WithCorrelationIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationIDFromCtx returns the correlation ID set on ctx, or "".
func CorrelationIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// WithFieldsCtx adds fields to every entry logged under ctx. Fields from
// outer contexts are kept unless overridden.
func WithFieldsCtx(ctx context.Context, fields map[string]any) context.Context {
	merged := maps.Clone(FieldsFromCtx(ctx))
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, fieldsKey, merged)
}

// FieldsFromCtx returns the fields set on ctx. The map must not be modified.
func FieldsFromCtx(ctx context.Context) map[string]any {
	f, _ := ctx.Value(fieldsKey).(map[string]any)
	return f
}

// WithLoggerCtx attaches l to ctx.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromCtx returns the logger attached to ctx, or nil.
func LoggerFromCtx(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	return l
}

// ContextLogger picks the logger for work running under ctx: the attached
// logger, else base, else the global one. The context's correlation ID and
// fields are applied to it.
func ContextLogger(ctx context.Context, base *Logger) *Logger {
	l := LoggerFromCtx(ctx)
	if l == nil {
		l = Or(base)
	}
	if id := CorrelationIDFromCtx(ctx); id != "" {
		l = l.WithCorrelationID(id)
	}
	if f := FieldsFromCtx(ctx); len(f) > 0 {
		l = l.With(f)
	}
	return l
}
