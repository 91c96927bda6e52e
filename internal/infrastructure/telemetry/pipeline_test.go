package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.5,
		Insecure:          true,
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)
	assert.Equal(t, TracerName, cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.SamplingRatio)
	assert.Equal(t, defaultExportInterval, cfg.ExportInterval)

	named := ConfigFrom(config.TelemetryConfig{ServiceName: "escrow-worker"})
	assert.Equal(t, "escrow-worker", named.ServiceName)
}

func TestStart_Disabled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p, err := Start(context.Background(), Config{ServiceName: "escrow-test"}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, "escrow-test", p.ServiceName())
	assert.NotNil(t, p.Tracer("test"))
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Telemetry disabled").Len())

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base, zapcore.InfoLevel))
}

func TestPipeline_ExportInterval(t *testing.T) {
	assert.Equal(t, defaultExportInterval, (&Pipeline{}).exportInterval())
	assert.Equal(t, 5*time.Second, (&Pipeline{cfg: Config{ExportInterval: 5 * time.Second}}).exportInterval())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestBridgeLogger_WritesToBothCores(t *testing.T) {
	exporter := &memoryLogExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	p := &Pipeline{cfg: Config{ServiceName: "escrow-test"}, log: zap.NewNop(), logs: provider}

	baseCore, observed := observer.New(zapcore.DebugLevel)
	log := p.BridgeLogger(zap.New(baseCore), zapcore.WarnLevel)

	log.Info("deposit confirmed")
	log.Warn("payout retry", zap.Int("attempt", 2))
	log.With(zap.String("escrow_account_id", "acc-1")).Error("payout failed")

	assert.Equal(t, 3, observed.Len())
	assert.Equal(t, []string{"payout retry", "payout failed"}, exporter.bodies())
}

func TestPipeline_FlushAndShutdown(t *testing.T) {
	exporter := &memoryLogExporter{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	p := &Pipeline{cfg: Config{ServiceName: "escrow-test"}, log: zap.NewNop(), logs: provider}

	p.BridgeLogger(zap.NewNop(), zapcore.InfoLevel).Error("payout failed")

	require.NoError(t, p.Flush(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []string{"payout failed"}, exporter.bodies())
}
