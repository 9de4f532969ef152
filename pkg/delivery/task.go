package delivery

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// Delivery modes used in logs and metrics.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

// TaskOptions configures a HandlerTask. Zero values are valid.
type TaskOptions struct {
	// Mode is ModeSync or ModeAsync.
	Mode string
	// Exempt disables the watchdog for the task.
	Exempt bool
	// OnImpaired is called once if the watchdog fires for the task.
	OnImpaired func(Handler)

	Logger      *observability.Logger
	Metrics     *observability.Metrics
	OTelMetrics *observability.OTelMetrics
	Tracer      trace.Tracer
}

// HandlerTask delivers one event to one handler.
type HandlerTask struct {
	handler  Handler
	event    Event
	opts     TaskOptions
	origin   trace.SpanContext
	impaired atomic.Bool
	done     atomic.Bool
}

// NewHandlerTask creates a task delivering event to handler.
func NewHandlerTask(handler Handler, event Event, opts TaskOptions) *HandlerTask {
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer()
	}
	if opts.Mode == "" {
		opts.Mode = ModeSync
	}
	return &HandlerTask{
		handler: handler,
		event:   event,
		opts:    opts,
	}
}

// Handler returns the handler of the task.
func (t *HandlerTask) Handler() Handler { return t.handler }

// Event returns the event of the task.
func (t *HandlerTask) Event() Event { return t.event }

// Impaired reports whether the watchdog fired for the task.
func (t *HandlerTask) Impaired() bool { return t.impaired.Load() }

// Done reports whether the handler has returned.
func (t *HandlerTask) Done() bool { return t.done.Load() }

// LinkOrigin links the delivery span to the span active in ctx, normally the
// publisher's.
func (t *HandlerTask) LinkOrigin(ctx context.Context) {
	t.origin = trace.SpanContextFromContext(ctx)
}

// TimeoutExempt implements dispatch.TimeoutExempt.
func (t *HandlerTask) TimeoutExempt() bool { return t.opts.Exempt }

// Execute invokes the handler. Errors and panics are logged and counted,
// never propagated.
func (t *HandlerTask) Execute(ctx context.Context) {
	ws := async.WorkerStateFrom(ctx)
	ws.Enter()
	defer ws.Leave()
	defer t.done.Store(true)

	name := t.handler.Name()
	spanOpts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("eventbus.handler", name),
			attribute.String("eventbus.topic", t.event.Topic),
			attribute.String("eventbus.event_id", t.event.ID),
			attribute.String("eventbus.mode", t.opts.Mode),
		),
	}
	if t.origin.IsValid() {
		spanOpts = append(spanOpts, trace.WithLinks(trace.Link{SpanContext: t.origin}))
	}
	ctx, span := t.opts.Tracer.Start(ctx, "eventbus.deliver "+t.event.Topic, spanOpts...)
	defer span.End()

	log := observability.UpdateLoggerWithTraceContext(ctx, t.opts.Logger).WithFields(map[string]interface{}{
		"handler":  name,
		"topic":    t.event.Topic,
		"event_id": t.event.ID,
		"mode":     t.opts.Mode,
	})

	start := time.Now()
	err := t.invoke(ctx, log)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("Handler failed")
	} else {
		log.Debugf("Handler returned after %s", elapsed)
	}

	t.opts.Metrics.RecordTask(t.opts.Mode, elapsed, err)
	t.opts.OTelMetrics.RecordDelivery(ctx, t.opts.Mode, name, elapsed, err)
}

func (t *HandlerTask) invoke(ctx context.Context, log *observability.Logger) (err error) {
	defer observability.RecoverToError(log, "event handler", &err)
	return t.handler.Handle(ctx, t.event)
}

// Impair implements dispatch.Task. Only the first call has an effect.
func (t *HandlerTask) Impair() {
	if !t.impaired.CompareAndSwap(false, true) {
		return
	}
	name := t.handler.Name()
	t.opts.Logger.WithFields(map[string]interface{}{
		"handler":  name,
		"topic":    t.event.Topic,
		"event_id": t.event.ID,
		"mode":     t.opts.Mode,
	}).Warn("Handler exceeded its timeout and is impaired")

	t.opts.Metrics.RecordImpairment(name)
	t.opts.OTelMetrics.RecordImpairment(context.Background(), name)
	if t.opts.OnImpaired != nil {
		t.opts.OnImpaired(t.handler)
	}
}
