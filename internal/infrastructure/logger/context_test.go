package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fieldMap(entry observer.LoggedEntry) map[string]string {
	out := make(map[string]string, len(entry.Context))
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

func TestFromContext(t *testing.T) {
	t.Run("returns attached logger", func(t *testing.T) {
		logger := zap.NewExample()
		ctx := WithContext(context.Background(), logger)
		assert.Same(t, logger, FromContext(ctx))
	})

	t.Run("returns nop logger when missing", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, UserID(ctx))
	assert.Empty(t, IdempotencyKey(ctx))
	assert.Empty(t, Fields(ctx))

	withReq := WithRequestID(ctx, "req-1")
	full := WithIdempotencyKey(WithUserID(withReq, "owner-1"), "dep-001")

	assert.Equal(t, "req-1", RequestID(full))
	assert.Equal(t, "owner-1", UserID(full))
	assert.Equal(t, "dep-001", IdempotencyKey(full))
	assert.Empty(t, UserID(withReq), "parent context is not modified")
	assert.Len(t, Fields(full), 3)
}

func TestContextLogger_SkipsDisabledLevels(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	ctx := WithRequestID(WithContext(context.Background(), zap.New(core)), "req-9")

	L(ctx).Debug("ledger balanced")
	L(ctx).Info("deposit recorded")
	L(ctx).Warn("payout held")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "req-9", fieldMap(recorded.All()[0])["request_id"])
}

func TestL_EnrichesEntries(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithUserID(ctx, "owner-7")
	ctx = WithIdempotencyKey(ctx, "payout-1")

	L(ctx).Info("payout requested", zap.String("amount", "100.00"))

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := fieldMap(logs[0])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "owner-7", fields["user_id"])
	assert.Equal(t, "payout-1", fields["idempotency_key"])
	assert.Equal(t, "100.00", fields["amount"])
	_, hasTrace := fields["trace_id"]
	assert.False(t, hasTrace)
}

func TestL_AddsTraceCorrelation(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	WithLogger(ctx, zap.New(core)).Warn("transfer retry")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := fieldMap(logs[0])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).With(zap.String("escrow_account_id", "acc-1")).Error("payout failed")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "acc-1", fieldMap(logs[0])["escrow_account_id"])
	assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Debug("ignored")
		cl.With(zap.Int("n", 1)).Info("ignored")
	})
	assert.NotNil(t, cl.Zap())
}
