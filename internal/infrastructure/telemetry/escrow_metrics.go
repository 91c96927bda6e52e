package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// EscrowMetrics records money movement through escrow accounts.
type EscrowMetrics struct {
	depositTotal      *Counter
	depositAmount     *Histogram
	payoutTotal       *Counter
	payoutAmount      *Histogram
	gatewayDuration   *Histogram
	gatewayRetryTotal *Counter
	webhookTotal      *Counter
}

// NewEscrowMetrics creates the escrow instruments on the given meter.
func NewEscrowMetrics(meter metric.Meter) (*EscrowMetrics, error) {
	in := NewInstruments(meter)
	m := &EscrowMetrics{
		depositTotal:      in.Counter("escrow_deposit_total", "Confirmed escrow deposits", "{deposit}"),
		depositAmount:     in.Histogram("escrow_deposit_amount", "Confirmed deposit amounts in major currency units", "{currency}"),
		payoutTotal:       in.Counter("escrow_payout_total", "Executed payouts by outcome", "{payout}"),
		payoutAmount:      in.Histogram("escrow_payout_amount", "Released payout amounts in major currency units", "{currency}"),
		gatewayDuration:   in.Histogram("escrow_gateway_duration_seconds", "Payment gateway call latency", "s", GatewayDurationBuckets...),
		gatewayRetryTotal: in.Counter("escrow_gateway_retry_total", "Retried payment gateway calls", "{retry}"),
		webhookTotal:      in.Counter("escrow_webhook_total", "Processed gateway webhooks by type and outcome", "{webhook}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// DepositConfirmed records a deposit that reached the escrow balance.
func (m *EscrowMetrics) DepositConfirmed(ctx context.Context, currency string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.depositTotal.Inc(ctx, AttrCurrency.String(currency))
	m.depositAmount.Record(ctx, amount.InexactFloat64(), AttrCurrency.String(currency))
}

// PayoutExecuted records a payout attempt outcome. Amount is only recorded
// for released payouts.
func (m *EscrowMetrics) PayoutExecuted(ctx context.Context, currency, status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.payoutTotal.Inc(ctx, AttrCurrency.String(currency), AttrPayoutStatus.String(status))
	if status == "RELEASED" {
		m.payoutAmount.Record(ctx, amount.InexactFloat64(), AttrCurrency.String(currency))
	}
}

// GatewayCall records one call to the payment gateway.
func (m *EscrowMetrics) GatewayCall(ctx context.Context, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayDuration.RecordDuration(ctx, d, AttrGatewayOp.String(op), AttrOutcome.String(outcome))
}

// GatewayRetry records a retried gateway call.
func (m *EscrowMetrics) GatewayRetry(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.gatewayRetryTotal.Inc(ctx, AttrGatewayOp.String(op))
}

// WebhookProcessed records a webhook delivery and what became of it.
func (m *EscrowMetrics) WebhookProcessed(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.Inc(ctx, AttrWebhookType.String(eventType), AttrOutcome.String(outcome))
}
