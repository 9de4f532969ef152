package engine

import (
	"context"

	"github.com/platinummonkey/eventbus/pkg/observability"
)

// Loop transitions as reported in metrics
const (
	transitionHold   = "hold"
	transitionResume = "resume"
)

// loopObserver reports the transitions of the loops of one queue.
type loopObserver struct {
	queue   string
	logger  *observability.Logger
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
}

func (e *Engine) observer(queue string) *loopObserver {
	return &loopObserver{
		queue:   queue,
		logger:  e.logger.WithField("queue", queue),
		metrics: e.metrics,
		otel:    e.otel,
	}
}

func (o *loopObserver) HandedOver(reason string) {
	o.logger.WithField("reason", reason).Debug("Dispatch loop handed over")
	o.record("handover_" + reason)
}

func (o *loopObserver) Held() {
	o.logger.Debug("Dispatch loop held")
	o.record(transitionHold)
}

func (o *loopObserver) Resumed() {
	o.logger.Debug("Dispatch loop resumed")
	o.record(transitionResume)
}

func (o *loopObserver) record(transition string) {
	o.metrics.RecordTransition(o.queue, transition)
	o.otel.RecordTransition(context.Background(), o.queue, transition)
}
