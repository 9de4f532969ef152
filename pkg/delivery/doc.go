// Package delivery turns (handler, event) pairs into dispatch tasks and
// implements the synchronous and asynchronous delivery strategies.
//
// # Overview
//
// A HandlerTask invokes one handler with one event. It never lets a handler
// error or panic escape, and it reports impairment (a watchdog timeout) at
// most once.
//
// SyncDeliverer blocks the publisher until the batch has been delivered.
// AsyncDeliverer queues the batch and returns at once.
//
// # Caller Identity
//
// Both strategies behave differently when the publisher is itself a pool
// worker delivering an event. The worker is identified through the
// context.Context it hands to the handler, so handlers must publish with the
// context they were invoked with (or one derived from it):
//
//	func (h *audit) Handle(ctx context.Context, ev delivery.Event) error {
//	    return bus.PublishSync(ctx, followUps(ev))
//	}
//
// A sync publish from a sync worker pushes the nested batch to the head of
// the sync queue and holds the worker's loop until the batch is done. A sync
// publish from an async worker hands the async loop over to a fresh worker
// and waits for the batch on the worker's rendezvous barriers.
//
// A handler that publishes with an unrelated context is treated as an
// ordinary publisher. On a sync worker that stalls its own loop until the
// watchdog hands it over.
//
// # Timeout Exemptions
//
// Handlers matching a TimeoutExemptions list run without a watchdog:
//
//	ex := delivery.ParseTimeoutExemptions([]string{"audit.Recorder", "metrics.", "infra*"})
//	ex.Matches("metrics.Counter") // true
//
// # Related Packages
//
//   - pkg/dispatch: queues and loops the tasks run on
//   - pkg/async: worker pools and rendezvous barriers
//   - pkg/engine: wires strategies, pools and queues together
package delivery
