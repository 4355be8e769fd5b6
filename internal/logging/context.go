package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Correlation field keys.
const (
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRunID     = "run.id"
	KeyRecordID  = "record.id"
	KeyRequestID = "request.id"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String(KeyTraceID, sc.TraceID().String()),
			zap.String(KeySpanID, sc.SpanID().String()),
		)
	}
	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(KeyRunID, id))
	}
	if id := RecordIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(KeyRecordID, id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(KeyRequestID, id))
	}
	return fields
}

type runCtxKey struct{}
type recordCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// validateID checks an identifier before it is attached to log output.
// Record IDs come from input data, so anything that could smuggle free
// text into logs is rejected.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

func withID(ctx context.Context, key any, id string) context.Context {
	if validateID(id, "id") != nil {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFromContext(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithRunID tags ctx with a CLI or batch run ID. Invalid IDs are ignored.
func WithRunID(ctx context.Context, id string) context.Context {
	return withID(ctx, runCtxKey{}, id)
}

// RunIDFromContext returns the run ID or "".
func RunIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, runCtxKey{})
}

// WithRecordID tags ctx with the record being sanitized. Invalid IDs are
// ignored rather than logged.
func WithRecordID(ctx context.Context, id string) context.Context {
	return withID(ctx, recordCtxKey{}, id)
}

// RecordIDFromContext returns the record ID or "".
func RecordIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, recordCtxKey{})
}

// WithRequestID tags ctx with an HTTP request ID. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	return idFromContext(ctx, requestCtxKey{})
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
