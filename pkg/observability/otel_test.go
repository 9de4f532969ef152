package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestInitOTel_Disabled tests that InitOTel returns nil when disabled
func TestInitOTel_Disabled(t *testing.T) {
	ctx := context.Background()
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	providers, err := InitOTel(ctx, OTelConfig{Enabled: false}, logger)

	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, logger))
}

// TestShutdownOTel_WithProviders tests shutdown with providers that have no exporter
func TestShutdownOTel_WithProviders(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(),
		MeterProvider:  sdkmetric.NewMeterProvider(),
	}

	assert.NoError(t, ShutdownOTel(context.Background(), providers, logger))
	assert.Contains(t, buf.String(), "OpenTelemetry shutdown complete")
}

func TestUpdateLoggerWithTraceContext_NoSpan(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	updated := UpdateLoggerWithTraceContext(context.Background(), logger)

	assert.Same(t, logger, updated)
}

func TestUpdateLoggerWithTraceContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test-tracer").Start(context.Background(), "test-span")
	defer span.End()

	logger := NewLogger(InfoLevel, &bytes.Buffer{}).WithField("queue", "sync")
	updated := UpdateLoggerWithTraceContext(ctx, logger)

	data := updated.Entry().Data
	assert.Equal(t, span.SpanContext().TraceID().String(), data["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), data["span_id"])
	assert.Equal(t, "sync", data["queue"])
}

func TestUpdateLoggerWithTraceContext_NonRecordingSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
	ctx, span := tp.Tracer("test-tracer").Start(context.Background(), "test-span")
	defer span.End()

	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	updated := UpdateLoggerWithTraceContext(ctx, logger)

	assert.NotContains(t, updated.Entry().Data, "trace_id")
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"zero samples everything", 0, "ParentBased{root:AlwaysOnSampler"},
		{"one samples everything", 1, "ParentBased{root:AlwaysOnSampler"},
		{"fraction uses ratio", 0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, sampler(tt.ratio).Description(), tt.want)
		})
	}
}

func TestNewProviders_ExportsThroughGivenExporters(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	res, err := busResource(ctx, OTelConfig{ServiceName: "eventbus-test", ServiceVersion: "v0"})
	require.NoError(t, err)

	providers := newProviders(res, sampler(1), spans, reader)

	_, span := providers.TracerProvider.Tracer("test").Start(ctx, "eventbus.deliver")
	span.End()
	require.NoError(t, providers.TracerProvider.ForceFlush(ctx))

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "eventbus.deliver", got[0].Name)
	svc, ok := got[0].Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "eventbus-test", svc.AsString())

	counter, err := providers.MeterProvider.Meter("test").Int64Counter("eventbus.test")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "eventbus.test", rm.ScopeMetrics[0].Metrics[0].Name)

	assert.NoError(t, ShutdownOTel(ctx, providers, NewLogger(InfoLevel, &bytes.Buffer{})))
}

func TestBusResource_TagsComponent(t *testing.T) {
	res, err := busResource(context.Background(), OTelConfig{ServiceName: "eventbus"})
	require.NoError(t, err)

	v, ok := res.Set().Value("eventbus.component")
	require.True(t, ok)
	assert.Equal(t, "dispatch", v.AsString())
}
