package telemetry

import (
	"context"
	"fmt"

	"github.com/escrowhub/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer, meter and default service
const TracerName = "escrow-backend"

// Span attribute keys
const (
	SpanAttrAgreementID     = "agreement_id"
	SpanAttrMilestoneID     = "milestone_id"
	SpanAttrPartyID         = "party_id"
	SpanAttrEscrowAccountID = "escrow_account_id"
	SpanAttrTransactionID   = "transaction_id"
	SpanAttrTransactionType = "transaction_type"
	SpanAttrAmount          = "amount"
	SpanAttrCurrency        = "currency"
	SpanAttrIdempotencyKey  = "idempotency_key"
	SpanAttrGateway         = "payment_gateway"
	SpanAttrWebhookType     = "webhook_type"
	SpanAttrAttempt         = "attempt"
)

// SpanOption adjusts how StartSpan opens a span
type SpanOption func(*[]trace.SpanStartOption)

// WithAttribute sets an attribute at span start
func WithAttribute(key string, value any) SpanOption {
	return func(opts *[]trace.SpanStartOption) {
		*opts = append(*opts, trace.WithAttributes(toAttribute(key, value)))
	}
}

// WithSpanKind overrides the default internal kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(opts *[]trace.SpanStartOption) {
		*opts = append(*opts, trace.WithSpanKind(kind))
	}
}

// StartSpan opens a span on the global tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	start := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}
	for _, opt := range opts {
		opt(&start)
	}
	return otel.Tracer(TracerName).Start(ctx, name, start...)
}

// StartServiceSpan opens a span named "<service>.<method>", e.g. "escrow.request_payout"
func StartServiceSpan(ctx context.Context, service, method string, opts ...SpanOption) (context.Context, trace.Span) {
	return StartSpan(ctx, service+"."+method, opts...)
}

// SetAttributes sets key/value pairs on span. Pairs whose key is not a
// string are dropped, as is a trailing key without a value.
//
//	telemetry.SetAttributes(span,
//	    telemetry.SpanAttrEscrowAccountID, accountID,
//	    telemetry.SpanAttrAmount, amount,
//	)
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[i+1]))
		}
	}
	span.SetAttributes(attrs...)
}

// SetAttribute sets one attribute on span
func SetAttribute(span trace.Span, key string, value any) {
	if span != nil {
		span.SetAttributes(toAttribute(key, value))
	}
}

// RecordError adds err as an exception event and marks span failed. A nil
// err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if code := shared.ErrorCode(err); code != "" {
		span.SetAttributes(AttrErrorCode.String(code))
	}
}

// TraceID returns the hex trace id of the span in ctx, or "" without one
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// toAttribute keeps numbers and booleans typed. Money amounts, ids and
// anything else arrive as strings.
func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
