package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeterProvider creates a test meter provider with a manual reader
func setupTestMeterProvider(t *testing.T) (*metric.MeterProvider, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return provider, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewOTelMetrics(t *testing.T) {
	provider, _ := setupTestMeterProvider(t)

	m, err := NewOTelMetrics(provider)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.NotNil(t, m.deliveriesTotal)
	assert.NotNil(t, m.deliveryDuration)
	assert.NotNil(t, m.impairmentsTotal)
	assert.NotNil(t, m.transitionsTotal)
	assert.NotNil(t, m.heldLoops)
}

func TestOTelMetrics_RecordDelivery(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	m, err := NewOTelMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDelivery(ctx, "sync", "audit", 5*time.Millisecond, nil)
	m.RecordDelivery(ctx, "async", "audit", time.Millisecond, errors.New("boom"))

	metrics := collect(t, reader)
	assert.EqualValues(t, 2, sumOf(t, metrics["eventbus.deliveries"]))

	hist, ok := metrics["eventbus.delivery.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.EqualValues(t, 2, count)
}

func TestOTelMetrics_RecordTransition(t *testing.T) {
	provider, reader := setupTestMeterProvider(t)
	m, err := NewOTelMetrics(provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTransition(ctx, "sync", "hold")
	m.RecordTransition(ctx, "sync", "hold")
	m.RecordTransition(ctx, "sync", "resume")
	m.RecordTransition(ctx, "async", "timeout")
	m.RecordImpairment(ctx, "slow")

	metrics := collect(t, reader)
	assert.EqualValues(t, 4, sumOf(t, metrics["eventbus.loop.transitions"]))
	assert.EqualValues(t, 1, sumOf(t, metrics["eventbus.loop.held"]))
	assert.EqualValues(t, 1, sumOf(t, metrics["eventbus.handler.impairments"]))
}

func TestOTelMetrics_NilSafe(t *testing.T) {
	var m *OTelMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordDelivery(ctx, "sync", "h", time.Millisecond, nil)
		m.RecordImpairment(ctx, "h")
		m.RecordTransition(ctx, "sync", "hold")
	})
}
