package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the meter and tracer of this module
const InstrumentationName = "github.com/platinummonkey/eventbus"

// Tracer returns the tracer used for delivery spans
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// OTelMetrics holds OpenTelemetry metric instruments
type OTelMetrics struct {
	// Delivery metrics
	deliveriesTotal  metric.Int64Counter
	deliveryDuration metric.Float64Histogram
	impairmentsTotal metric.Int64Counter

	// Dispatch loop metrics
	transitionsTotal metric.Int64Counter
	heldLoops        metric.Int64UpDownCounter
}

// NewOTelMetrics creates a new OTel metrics instance. A nil provider uses the
// global meter provider.
func NewOTelMetrics(provider metric.MeterProvider) (*OTelMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(InstrumentationName)

	m := &OTelMetrics{}
	var err error

	m.deliveriesTotal, err = meter.Int64Counter(
		"eventbus.deliveries",
		metric.WithDescription("Total number of delivery tasks executed"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deliveries counter: %w", err)
	}

	m.deliveryDuration, err = meter.Float64Histogram(
		"eventbus.delivery.duration",
		metric.WithDescription("Handler execution time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery_duration histogram: %w", err)
	}

	m.impairmentsTotal, err = meter.Int64Counter(
		"eventbus.handler.impairments",
		metric.WithDescription("Total number of handlers impaired by a watchdog"),
		metric.WithUnit("{handler}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create impairments counter: %w", err)
	}

	m.transitionsTotal, err = meter.Int64Counter(
		"eventbus.loop.transitions",
		metric.WithDescription("Total number of dispatch loop hand-overs, holds and resumes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	m.heldLoops, err = meter.Int64UpDownCounter(
		"eventbus.loop.held",
		metric.WithDescription("Number of dispatch loops currently held"),
		metric.WithUnit("{loop}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create held_loops gauge: %w", err)
	}

	return m, nil
}

// RecordDelivery records one executed delivery task
func (m *OTelMetrics) RecordDelivery(ctx context.Context, mode, handler string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("eventbus.mode", mode),
		attribute.String("eventbus.handler", handler),
		attribute.Bool("error", err != nil),
	}

	m.deliveriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordImpairment records a handler marked impaired
func (m *OTelMetrics) RecordImpairment(ctx context.Context, handler string) {
	if m == nil {
		return
	}
	m.impairmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("eventbus.handler", handler),
	))
}

// RecordTransition records a dispatch loop transition. Holds and resumes
// also move the held-loop gauge.
func (m *OTelMetrics) RecordTransition(ctx context.Context, queue, transition string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("eventbus.queue", queue),
		attribute.String("eventbus.transition", transition),
	)
	m.transitionsTotal.Add(ctx, 1, attrs)

	switch transition {
	case "hold":
		m.heldLoops.Add(ctx, 1, metric.WithAttributes(attribute.String("eventbus.queue", queue)))
	case "resume":
		m.heldLoops.Add(ctx, -1, metric.WithAttributes(attribute.String("eventbus.queue", queue)))
	}
}
