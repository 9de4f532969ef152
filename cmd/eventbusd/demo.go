package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/eventbus/pkg/delivery"
	"github.com/platinummonkey/eventbus/pkg/engine"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

const (
	topicHeartbeat = "heartbeat"
	topicAudit     = "audit"
)

// registerDemoHandlers subscribes the handlers exercised by the heartbeat:
// a logger on every topic, a cascading handler publishing from within its
// delivery, and a handler that outlives the timeout when asked to.
func registerDemoHandlers(r *handlerRegistry, eng *engine.Engine, logger *observability.Logger, timeout time.Duration) {
	r.Subscribe("*", delivery.NewHandlerFunc("demo.Logger", func(ctx context.Context, e delivery.Event) error {
		observability.UpdateLoggerWithTraceContext(ctx, logger).WithFields(map[string]interface{}{
			"topic":    e.Topic,
			"event_id": e.ID,
		}).Info("Event received")
		return nil
	}))

	r.Subscribe(topicHeartbeat, delivery.NewHandlerFunc("demo.Cascade", func(ctx context.Context, e delivery.Event) error {
		// publish with the delivery context so the engine sees the reentry
		return eng.Send(ctx, newEvent(topicAudit, map[string]interface{}{"source": e.ID}), r.Resolve(topicAudit)...)
	}))

	r.Subscribe(topicHeartbeat, delivery.NewHandlerFunc("demo.Slow", func(ctx context.Context, e delivery.Event) error {
		if slow, _ := e.Properties["slow"].(bool); !slow || timeout <= 0 {
			return nil
		}
		select {
		case <-time.After(2 * timeout):
		case <-ctx.Done():
		}
		return nil
	}))
}

func newEvent(topic string, props map[string]interface{}) delivery.Event {
	return delivery.Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Time:       time.Now().UTC(),
		Properties: props,
	}
}

// heartbeat publishes alternating sync and async heartbeat events
type heartbeat struct {
	eng       *engine.Engine
	registry  *handlerRegistry
	logger    *observability.Logger
	slowEvery int64
	count     atomic.Int64
}

func newHeartbeat(eng *engine.Engine, registry *handlerRegistry, logger *observability.Logger, slowEvery int) *heartbeat {
	return &heartbeat{
		eng:       eng,
		registry:  registry,
		logger:    logger.WithField("publisher", "heartbeat"),
		slowEvery: int64(slowEvery),
	}
}

// Send publishes one heartbeat; it is the cron job.
func (h *heartbeat) Send() {
	n := h.count.Add(1)
	event := newEvent(topicHeartbeat, map[string]interface{}{
		"sequence": n,
		"slow":     h.slowEvery > 0 && n%h.slowEvery == 0,
	})
	ctx := observability.WithEventID(context.Background(), event.ID)
	handlers := h.registry.Resolve(topicHeartbeat)

	var err error
	if n%2 == 0 {
		err = h.eng.Post(ctx, event, handlers...)
	} else {
		err = h.eng.Send(ctx, event, handlers...)
	}
	if err != nil {
		h.logger.WithError(err).WithField("event_id", event.ID).Warn("Failed to publish heartbeat")
	}
}
