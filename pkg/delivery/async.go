package delivery

import (
	"context"
	"time"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/dispatch"
)

// AsyncDeliverer queues batches on the async queue and returns at once.
type AsyncDeliverer struct {
	queue *dispatch.TaskQueue
	pool  *async.ThreadPool
	sync  *SyncDeliverer
}

// NewAsyncDeliverer creates a strategy feeding queue, whose loops run on pool.
// Synchronous publishes from async workers are handed to sync.
func NewAsyncDeliverer(queue *dispatch.TaskQueue, pool *async.ThreadPool, sync *SyncDeliverer) *AsyncDeliverer {
	return &AsyncDeliverer{queue: queue, pool: pool, sync: sync}
}

// Queue returns the async queue.
func (d *AsyncDeliverer) Queue() *dispatch.TaskQueue { return d.queue }

// Deliver appends tasks to the async queue without blocking.
func (d *AsyncDeliverer) Deliver(_ context.Context, tasks []dispatch.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return d.queue.Append(tasks...)
}

// Execute implements dispatch.HandoverTarget: loop continues on an async
// pool worker.
func (d *AsyncDeliverer) Execute(loop *dispatch.Loop) {
	d.pool.Submit(loop, &handoffDeliverer{async: d, loop: loop})
}

// handoffDeliverer is bound to async pool workers. A handler publishing
// synchronously hands its async loop over to a fresh worker, so the async
// queue keeps flowing, and waits for the batch on the worker's barriers.
type handoffDeliverer struct {
	async *AsyncDeliverer
	loop  *dispatch.Loop
}

func (h *handoffDeliverer) Deliver(ctx context.Context, tasks []dispatch.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ws := async.WorkerStateFrom(ctx)
	ws.ResetBarriers()
	start, done := ws.Barriers()

	batch := make([]dispatch.Task, 0, len(tasks)+2)
	batch = append(batch, &rendezvousTask{barrier: start})
	batch = append(batch, tasks...)
	batch = append(batch, &rendezvousTask{barrier: done})
	if err := h.async.sync.queue.Append(batch...); err != nil {
		return err
	}

	h.async.pool.LookupLoop(ctx, h.loop).Handover()

	return awaitBarriers(ctx, start, done)
}

// awaitBarriers meets the sync worker on start and done. With a deadline on
// ctx the waits are bounded; a missed deadline breaks both barriers so the
// sync worker never blocks on an absent publisher.
func awaitBarriers(ctx context.Context, start, done *async.Rendezvous) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		start.Wait()
		done.Wait()
		return nil
	}

	for _, barrier := range []*async.Rendezvous{start, done} {
		if !barrier.WaitAttempt(time.Until(deadline)) {
			start.WaitAttempt(0)
			done.WaitAttempt(0)
			return context.DeadlineExceeded
		}
	}
	return nil
}
