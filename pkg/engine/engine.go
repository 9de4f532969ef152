package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/config"
	"github.com/platinummonkey/eventbus/pkg/delivery"
	"github.com/platinummonkey/eventbus/pkg/dispatch"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// ErrEngineClosed is returned by publishes after Close.
var ErrEngineClosed = errors.New("engine: closed")

// Queue names used in logs and metrics.
const (
	SyncQueue  = "sync"
	AsyncQueue = "async"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithOTelMetrics records OpenTelemetry metrics.
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(e *Engine) { e.otel = metrics }
}

// WithTracer sets the tracer for publish and delivery spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock sets the clock driving handler timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithImpairmentCallback is called once for every delivery whose handler
// exceeded the timeout. It runs on the scheduler's goroutine and must not
// block.
func WithImpairmentCallback(fn func(delivery.Handler)) Option {
	return func(e *Engine) { e.onImpaired = fn }
}

// Engine owns the sync and async queues, their pools and dispatch loops.
type Engine struct {
	logger     *observability.Logger
	metrics    *observability.Metrics
	otel       *observability.OTelMetrics
	tracer     trace.Tracer
	clock      clockwork.Clock
	onImpaired func(delivery.Handler)

	sched      *dispatch.TimeoutScheduler
	exemptions atomic.Pointer[delivery.TimeoutExemptions]

	syncQueue  *dispatch.TaskQueue
	asyncQueue *dispatch.TaskQueue
	syncPool   *async.ThreadPool
	asyncPool  *async.ThreadPool
	sync       *delivery.SyncDeliverer
	async      *delivery.AsyncDeliverer

	impairments atomic.Int64
	closed      atomic.Bool
}

// New creates an engine and starts one dispatch loop per queue. cfg is used
// as given; config.DispatchConfig.Normalize applies the configuration
// fallbacks.
func New(cfg config.DispatchConfig, opts ...Option) (*Engine, error) {
	if err := async.ValidatePoolSize(cfg.SyncPoolSize()); err != nil {
		return nil, fmt.Errorf("sync pool: %w", err)
	}
	if err := async.ValidatePoolSize(cfg.AsyncPoolSize()); err != nil {
		return nil, fmt.Errorf("async pool: %w", err)
	}

	e := &Engine{
		logger: observability.NewNopLogger(),
		tracer: observability.Tracer(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.sched = dispatch.NewScheduler(cfg.Timeout, e.clock)
	e.exemptions.Store(delivery.ParseTimeoutExemptions(cfg.IgnoreTimeout))

	e.syncQueue = dispatch.NewTaskQueue()
	e.asyncQueue = dispatch.NewTaskQueue()
	// sync workers only run while a publisher waits for them
	e.syncPool = async.NewThreadPool(SyncQueue, cfg.SyncPoolSize(),
		async.WithLogger(e.logger), async.WithMetrics(e.metrics), async.WithDaemon(true))
	e.asyncPool = async.NewThreadPool(AsyncQueue, cfg.AsyncPoolSize(),
		async.WithLogger(e.logger), async.WithMetrics(e.metrics), async.WithDaemon(cfg.AsyncDaemon))
	e.sync = delivery.NewSyncDeliverer(e.syncQueue, e.syncPool)
	e.async = delivery.NewAsyncDeliverer(e.asyncQueue, e.asyncPool, e.sync)

	e.sync.Execute(dispatch.NewLoop(e.syncQueue, e.sched, e.sync,
		dispatch.WithObserver(e.observer(SyncQueue))))
	e.async.Execute(dispatch.NewLoop(e.asyncQueue, e.sched, e.async,
		dispatch.WithObserver(e.observer(AsyncQueue))))

	e.logger.WithFields(cfg.Fields()).Debug("Dispatch engine started")
	return e, nil
}

// NewTask creates a synchronous delivery of event to handler.
func (e *Engine) NewTask(handler delivery.Handler, event delivery.Event) *delivery.HandlerTask {
	return e.newTask(handler, event, delivery.ModeSync)
}

func (e *Engine) newTask(handler delivery.Handler, event delivery.Event, mode string) *delivery.HandlerTask {
	return delivery.NewHandlerTask(handler, event, delivery.TaskOptions{
		Mode:        mode,
		Exempt:      e.exemptions.Load().Matches(handler.Name()),
		OnImpaired:  e.impaired,
		Logger:      e.logger,
		Metrics:     e.metrics,
		OTelMetrics: e.otel,
		Tracer:      e.tracer,
	})
}

func (e *Engine) impaired(handler delivery.Handler) {
	e.impairments.Add(1)
	if e.onImpaired != nil {
		e.onImpaired(handler)
	}
}

// Send delivers event to handlers and returns once every handler returned
// or timed out.
func (e *Engine) Send(ctx context.Context, event delivery.Event, handlers ...delivery.Handler) error {
	tasks := make([]dispatch.Task, 0, len(handlers))
	for _, h := range handlers {
		tasks = append(tasks, e.newTask(h, event, delivery.ModeSync))
	}
	return e.PublishSync(ctx, tasks...)
}

// Post queues event for handlers and returns immediately.
func (e *Engine) Post(ctx context.Context, event delivery.Event, handlers ...delivery.Handler) error {
	tasks := make([]dispatch.Task, 0, len(handlers))
	for _, h := range handlers {
		tasks = append(tasks, e.newTask(h, event, delivery.ModeAsync))
	}
	return e.PublishAsync(ctx, tasks...)
}

// PublishSync delivers tasks in order and blocks until all of them executed.
// It returns ctx's error if ctx ends first; the tasks are still delivered.
//
// Handlers publishing from within a delivery must pass the context they were
// invoked with. Otherwise the engine cannot tell the publish is reentrant and
// it stalls until the handler's timeout hands its loop over.
func (e *Engine) PublishSync(ctx context.Context, tasks ...dispatch.Task) error {
	return e.publish(ctx, delivery.ModeSync, tasks, func(ctx context.Context) error {
		return e.asyncPool.LookupCallback(ctx, e.sync).Deliver(ctx, tasks)
	})
}

// PublishAsync queues tasks in order and returns immediately.
func (e *Engine) PublishAsync(ctx context.Context, tasks ...dispatch.Task) error {
	return e.publish(ctx, delivery.ModeAsync, tasks, func(ctx context.Context) error {
		return e.async.Deliver(ctx, tasks)
	})
}

type originLinker interface {
	LinkOrigin(ctx context.Context)
}

func (e *Engine) publish(ctx context.Context, mode string, tasks []dispatch.Task, deliver func(context.Context) error) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	ctx, span := e.tracer.Start(ctx, "eventbus.publish "+mode,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("eventbus.mode", mode),
			attribute.Int("eventbus.tasks", len(tasks)),
		),
	)
	defer span.End()

	for _, t := range tasks {
		if l, ok := t.(originLinker); ok {
			l.LinkOrigin(ctx)
		}
	}

	start := time.Now()
	err := deliver(ctx)
	if errors.Is(err, dispatch.ErrQueueClosed) {
		err = fmt.Errorf("%w: %w", ErrEngineClosed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	e.metrics.RecordPublish(mode, time.Since(start), err)
	return err
}

// Update applies new dispatch settings. The timeout and exemptions apply to
// tasks armed or created from now on; pools are resized in place. The async
// daemon flag is fixed at creation.
func (e *Engine) Update(cfg config.DispatchConfig) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.sched.SetTimeout(cfg.Timeout)
	e.exemptions.Store(delivery.ParseTimeoutExemptions(cfg.IgnoreTimeout))

	err := errors.Join(
		e.syncPool.Configure(cfg.SyncPoolSize()),
		e.asyncPool.Configure(cfg.AsyncPoolSize()),
	)
	if err != nil {
		return fmt.Errorf("failed to resize pools: %w", err)
	}

	e.logger.WithFields(cfg.Fields()).Info("Dispatch engine reconfigured")
	return nil
}

// Close stops accepting publishes, delivers everything already queued and
// releases the pools. The async queue is drained before the sync queue so
// async handlers can still publish synchronously. With a non-daemon async
// pool Close also waits for the async workers to exit.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("Closing dispatch engine")

	asyncDone := delivery.NewBlockTask()
	e.asyncQueue.Close(asyncDone)
	drainErr := asyncDone.Wait(ctx)

	syncDone := delivery.NewBlockTask()
	e.syncQueue.Close(syncDone)
	if drainErr == nil {
		drainErr = syncDone.Wait(ctx)
	}

	e.syncPool.Close()
	e.asyncPool.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.syncPool.Wait(gctx) })
	g.Go(func() error { return e.asyncPool.Wait(gctx) })

	if err := errors.Join(drainErr, g.Wait()); err != nil {
		return fmt.Errorf("failed to drain dispatch engine: %w", err)
	}
	e.logger.Info("Dispatch engine closed")
	return nil
}

// Stats is a snapshot of the engine.
type Stats struct {
	SyncPool      async.PoolStats `json:"sync_pool"`
	AsyncPool     async.PoolStats `json:"async_pool"`
	SyncQueueLen  int             `json:"sync_queue_len"`
	AsyncQueueLen int             `json:"async_queue_len"`
	Timeout       time.Duration   `json:"timeout"`
	Impairments   int64           `json:"impairments"`
	Closed        bool            `json:"closed"`
}

// Stats returns a snapshot of the engine.
func (e *Engine) Stats() Stats {
	return Stats{
		SyncPool:      e.syncPool.Stats(),
		AsyncPool:     e.asyncPool.Stats(),
		SyncQueueLen:  e.syncQueue.Len(),
		AsyncQueueLen: e.asyncQueue.Len(),
		Timeout:       e.sched.Timeout(),
		Impairments:   e.impairments.Load(),
		Closed:        e.closed.Load(),
	}
}

// HealthCheck reports the engine as a health dependency: unhealthy once
// closed, degraded while a pool has every pooled worker busy.
func (e *Engine) HealthCheck() observability.CheckFunc {
	return func(ctx context.Context) observability.DependencyStatus {
		start := time.Now()
		stats := e.Stats()
		status := observability.DependencyStatus{
			Status:    observability.StatusHealthy,
			Timestamp: time.Now(),
		}

		switch {
		case stats.Closed:
			status.Status = observability.StatusUnhealthy
			status.Message = "engine closed"
		case saturated(stats.SyncPool) || saturated(stats.AsyncPool):
			status.Status = observability.StatusDegraded
			status.Message = fmt.Sprintf("pools saturated: sync %d/%d busy, async %d/%d busy",
				stats.SyncPool.Busy, stats.SyncPool.Size, stats.AsyncPool.Busy, stats.AsyncPool.Size)
		}
		status.Latency = time.Since(start)
		return status
	}
}

func saturated(p async.PoolStats) bool {
	return p.Size > 0 && p.Pooled == p.Size && p.Busy == p.Size
}
