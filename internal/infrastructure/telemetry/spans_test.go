package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func attrsOf(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestStartServiceSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	ctx, span := StartServiceSpan(context.Background(), "escrow", "request_payout",
		WithAttribute(SpanAttrEscrowAccountID, "acc-1"),
		WithSpanKind(trace.SpanKindServer),
	)
	assert.Len(t, TraceID(ctx), 32)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "escrow.request_payout", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "acc-1", attrsOf(spans[0].Attributes())[SpanAttrEscrowAccountID].AsString())
}

func TestStartSpan_DefaultsToInternal(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "outbox.dispatch")
	span.End()

	assert.Equal(t, trace.SpanKindInternal, recorder.Ended()[0].SpanKind())
}

func TestSetAttributes(t *testing.T) {
	recorder := setupTestTracer(t)
	agreementID := uuid.MustParse("7f1e4bb4-9f53-4a0a-a7b8-0f59a8c8a5a1")

	_, span := StartSpan(context.Background(), "agreement.create")
	SetAttributes(span,
		SpanAttrAgreementID, agreementID,
		42, "dropped",
		SpanAttrAmount, decimal.RequireFromString("1250.50"),
		SpanAttrAttempt, 3,
		"dangling",
	)
	SetAttribute(span, SpanAttrCurrency, "BRL")
	span.End()

	attrs := attrsOf(recorder.Ended()[0].Attributes())
	assert.Len(t, attrs, 4)
	assert.Equal(t, agreementID.String(), attrs[SpanAttrAgreementID].AsString())
	assert.Equal(t, "1250.5", attrs[SpanAttrAmount].AsString())
	assert.Equal(t, int64(3), attrs[SpanAttrAttempt].AsInt64())
	assert.Equal(t, "BRL", attrs[SpanAttrCurrency].AsString())
}

func TestSpanHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, SpanAttrAmount, "1")
		SetAttribute(nil, SpanAttrAmount, "1")
		RecordError(nil, errors.New("boom"))
	})
}

func TestRecordError(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "escrow.execute_payout")
	RecordError(span, errors.New("gateway timeout"))
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()[0]
	assert.Equal(t, codes.Error, ended.Status().Code)
	assert.Equal(t, "gateway timeout", ended.Status().Description)
	require.Len(t, ended.Events(), 1)
	assert.Equal(t, "exception", ended.Events()[0].Name)
}

func TestRecordError_DomainCode(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "escrow.approve_payout")
	RecordError(span, shared.ErrForbidden.WithMessage("Only the owner of the account can perform this operation"))
	span.End()

	attrs := attrsOf(recorder.Ended()[0].Attributes())
	assert.Equal(t, "FORBIDDEN", attrs["error.code"].AsString())
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestToAttribute(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  attribute.Type
	}{
		{"string", "x", attribute.STRING},
		{"bool", true, attribute.BOOL},
		{"int", 1, attribute.INT64},
		{"int64", int64(1), attribute.INT64},
		{"float", 1.5, attribute.FLOAT64},
		{"string slice", []string{"a"}, attribute.STRINGSLICE},
		{"uuid", uuid.New(), attribute.STRING},
		{"decimal", decimal.NewFromInt(5), attribute.STRING},
		{"other", struct{ A int }{1}, attribute.STRING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toAttribute("k", tt.value).Value.Type())
		})
	}
}
