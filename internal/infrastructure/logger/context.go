package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerKey struct{}

type correlationKey struct{}

// correlation is what ties an entry to the request that caused it
type correlation struct {
	requestID      string
	userID         string
	idempotencyKey string
}

func correlationOf(ctx context.Context) correlation {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, set func(*correlation)) context.Context {
	c := correlationOf(ctx)
	set(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// WithContext attaches logger to ctx for L
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext is the logger attached to ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

// WithUserID records the acting principal
func WithUserID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.userID = id })
}

// WithIdempotencyKey records the key of a money-moving request
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.idempotencyKey = key })
}

func RequestID(ctx context.Context) string      { return correlationOf(ctx).requestID }
func UserID(ctx context.Context) string         { return correlationOf(ctx).userID }
func IdempotencyKey(ctx context.Context) string { return correlationOf(ctx).idempotencyKey }

// Fields returns the correlation fields present in ctx: trace and span ids,
// request id, user id and idempotency key.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	c := correlationOf(ctx)
	if c.requestID != "" {
		fields = append(fields, zap.String("request_id", c.requestID))
	}
	if c.userID != "" {
		fields = append(fields, zap.String("user_id", c.userID))
	}
	if c.idempotencyKey != "" {
		fields = append(fields, zap.String("idempotency_key", c.idempotencyKey))
	}
	return fields
}

// ContextLogger adds the correlation fields of its context to every entry.
// The fields are read when the entry is written, so a span started after
// the logger was taken still shows up.
type ContextLogger struct {
	ctx  context.Context
	base *zap.Logger
}

// L logs through the logger attached to ctx
//
//	logger.L(ctx).Info("Payout executed", zap.String("transaction_id", id))
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, base: FromContext(ctx)}
}

// WithLogger logs through base instead of the logger attached to ctx
func WithLogger(ctx context.Context, base *zap.Logger) *ContextLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, base: base}
}

func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, base: cl.base.With(fields...)}
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.log(zapcore.DebugLevel, msg, fields)
}

func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.log(zapcore.InfoLevel, msg, fields)
}

func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.log(zapcore.WarnLevel, msg, fields)
}

func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.log(zapcore.ErrorLevel, msg, fields)
}

func (cl *ContextLogger) log(level zapcore.Level, msg string, fields []zap.Field) {
	ce := cl.base.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append(Fields(cl.ctx), fields...)...)
}

// Zap returns a plain zap logger carrying the correlation fields
func (cl *ContextLogger) Zap() *zap.Logger {
	return cl.base.With(Fields(cl.ctx)...)
}
