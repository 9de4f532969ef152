package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/eventbus/pkg/dispatch"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr, tp
}

func TestHandlerTask_Execute(t *testing.T) {
	sr, tp := newRecorder(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	var got Event
	handler := NewHandlerFunc("orders.Audit", func(_ context.Context, e Event) error {
		got = e
		return nil
	})
	event := Event{ID: "evt-1", Topic: "orders", Time: time.Now()}
	tk := NewHandlerTask(handler, event, TaskOptions{
		Mode:    ModeAsync,
		Metrics: metrics,
		Tracer:  tp.Tracer("test"),
	})

	assert.False(t, tk.Done())
	tk.Execute(context.Background())

	assert.True(t, tk.Done())
	assert.Equal(t, event, got)
	assert.Same(t, handler, tk.Handler())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TasksDeliveredTotal.WithLabelValues(ModeAsync, "ok")))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventbus.deliver orders", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestHandlerTask_ErrorsAndPanicsAreContained(t *testing.T) {
	sr, tp := newRecorder(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	opts := TaskOptions{Metrics: metrics, Tracer: tp.Tracer("test")}

	failing := NewHandlerTask(NewHandlerFunc("failing", func(context.Context, Event) error {
		return errors.New("boom")
	}), Event{Topic: "orders"}, opts)
	panicking := NewHandlerTask(NewHandlerFunc("panicking", func(context.Context, Event) error {
		panic("kaboom")
	}), Event{Topic: "orders"}, opts)

	assert.NotPanics(t, func() {
		failing.Execute(context.Background())
		panicking.Execute(context.Background())
	})

	assert.True(t, panicking.Done())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TasksDeliveredTotal.WithLabelValues(ModeSync, "error")))
	for _, span := range sr.Ended() {
		assert.Equal(t, codes.Error, span.Status().Code, span.Name())
	}
}

func TestHandlerTask_LinksOrigin(t *testing.T) {
	sr, tp := newRecorder(t)
	tracer := tp.Tracer("test")

	ctx, publish := tracer.Start(context.Background(), "publish")
	tk := NewHandlerTask(NewHandlerFunc("h", func(context.Context, Event) error { return nil }),
		Event{Topic: "orders"}, TaskOptions{Tracer: tracer})
	tk.LinkOrigin(ctx)
	publish.End()

	tk.Execute(context.Background())

	var deliver sdktrace.ReadOnlySpan
	for _, span := range sr.Ended() {
		if span.Name() == "eventbus.deliver orders" {
			deliver = span
		}
	}
	require.NotNil(t, deliver)
	require.Len(t, deliver.Links(), 1)
	assert.Equal(t, publish.SpanContext().TraceID(), deliver.Links()[0].SpanContext.TraceID())
}

func TestHandlerTask_ImpairOnce(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var impaired []string
	tk := NewHandlerTask(NewHandlerFunc("slow", func(context.Context, Event) error { return nil }),
		Event{Topic: "orders"}, TaskOptions{
			Metrics:    metrics,
			OnImpaired: func(h Handler) { impaired = append(impaired, h.Name()) },
		})

	tk.Impair()
	tk.Impair()

	assert.True(t, tk.Impaired())
	assert.Equal(t, []string{"slow"}, impaired)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HandlerImpairmentsTotal.WithLabelValues("slow")))
}

func TestHandlerTask_TimeoutExempt(t *testing.T) {
	h := NewHandlerFunc("h", func(context.Context, Event) error { return nil })

	var exempt dispatch.TimeoutExempt = NewHandlerTask(h, Event{}, TaskOptions{Exempt: true})
	assert.True(t, exempt.TimeoutExempt())
	assert.False(t, NewHandlerTask(h, Event{}, TaskOptions{}).TimeoutExempt())
}

func TestBlockTask(t *testing.T) {
	b := NewBlockTask()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)

	b.Execute(context.Background())
	b.Execute(context.Background())
	assert.NoError(t, b.Wait(context.Background()))

	select {
	case <-b.Done():
	default:
		t.Fatal("done channel not closed")
	}
}
