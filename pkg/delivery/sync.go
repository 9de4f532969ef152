package delivery

import (
	"context"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/dispatch"
)

// SyncDeliverer delivers batches through the sync queue and blocks the
// publisher until the batch is done.
type SyncDeliverer struct {
	queue *dispatch.TaskQueue
	pool  *async.ThreadPool
}

// NewSyncDeliverer creates a strategy feeding queue, whose loops run on pool.
func NewSyncDeliverer(queue *dispatch.TaskQueue, pool *async.ThreadPool) *SyncDeliverer {
	return &SyncDeliverer{queue: queue, pool: pool}
}

// Queue returns the sync queue.
func (d *SyncDeliverer) Queue() *dispatch.TaskQueue { return d.queue }

// Deliver delivers tasks and returns once all of them have executed.
//
// From an ordinary goroutine it appends the batch plus a BlockTask and waits
// for the block, or for ctx. From a worker of the sync pool it hands the batch
// to the worker's reentrant callback.
func (d *SyncDeliverer) Deliver(ctx context.Context, tasks []dispatch.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if cb := d.pool.LookupCallback(ctx, nil); cb != nil {
		return cb.Deliver(ctx, tasks)
	}

	block := NewBlockTask()
	if err := d.queue.Append(withTrailer(tasks, block)...); err != nil {
		return err
	}
	return block.Wait(ctx)
}

// Execute implements dispatch.HandoverTarget: loop continues on a sync pool
// worker.
func (d *SyncDeliverer) Execute(loop *dispatch.Loop) {
	d.pool.Submit(loop, &reentrantDeliverer{sync: d, loop: loop})
}

// reentrantDeliverer is bound to sync pool workers. A handler publishing
// synchronously gets its batch delivered by a continuation loop while its own
// loop is held.
type reentrantDeliverer struct {
	sync *SyncDeliverer
	loop *dispatch.Loop
}

func (r *reentrantDeliverer) Deliver(ctx context.Context, tasks []dispatch.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	pool := r.sync.pool
	loop := pool.LookupLoop(ctx, r.loop)
	batch := withTrailer(tasks, &resumeTask{target: loop, pool: pool})

	// Publishes from inside a handler cascade and jump the queue. Only a
	// worker ctx used outside any handler invocation appends.
	var err error
	if async.WorkerStateFrom(ctx).IsTopMostHandler() {
		err = r.sync.queue.Append(batch...)
	} else {
		err = r.sync.queue.Push(batch...)
	}
	if err != nil {
		return err
	}

	loop.Hold()
	return nil
}

func withTrailer(tasks []dispatch.Task, trailer ...dispatch.Task) []dispatch.Task {
	out := make([]dispatch.Task, 0, len(tasks)+len(trailer))
	out = append(out, tasks...)
	return append(out, trailer...)
}
