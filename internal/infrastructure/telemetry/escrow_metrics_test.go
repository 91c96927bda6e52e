package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowMetrics(t *testing.T) {
	provider, reader := setupTestMeter(t)
	m, err := NewEscrowMetrics(provider.Meter("escrow"))
	require.NoError(t, err)

	ctx := context.Background()
	m.DepositConfirmed(ctx, "BRL", decimal.RequireFromString("1000.00"))
	m.PayoutExecuted(ctx, "BRL", "RELEASED", decimal.RequireFromString("250.00"))
	m.PayoutExecuted(ctx, "BRL", "FAILED", decimal.RequireFromString("250.00"))
	m.GatewayCall(ctx, "transfer", 120*time.Millisecond, nil)
	m.GatewayCall(ctx, "transfer", time.Second, errors.New("timeout"))
	m.GatewayRetry(ctx, "transfer")
	m.WebhookProcessed(ctx, "deposit.succeeded", "applied")

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, rm, "escrow_deposit_total"))
	assert.Equal(t, uint64(1), histogramCount(t, rm, "escrow_deposit_amount"))
	assert.Equal(t, int64(2), sumOf(t, rm, "escrow_payout_total"))
	assert.Equal(t, uint64(1), histogramCount(t, rm, "escrow_payout_amount"))
	assert.Equal(t, uint64(2), histogramCount(t, rm, "escrow_gateway_duration_seconds"))
	assert.Equal(t, int64(1), sumOf(t, rm, "escrow_gateway_retry_total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "escrow_webhook_total"))
}

func TestEscrowMetrics_NilSafe(t *testing.T) {
	var m *EscrowMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.DepositConfirmed(ctx, "BRL", decimal.NewFromInt(1))
		m.PayoutExecuted(ctx, "BRL", "RELEASED", decimal.NewFromInt(1))
		m.GatewayCall(ctx, "transfer", time.Millisecond, nil)
		m.GatewayRetry(ctx, "transfer")
		m.WebhookProcessed(ctx, "ignored", "skipped")
	})
}
