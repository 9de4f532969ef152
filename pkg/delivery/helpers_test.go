package delivery

import (
	"context"
	"sync"
	"testing"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/dispatch"
)

// rig wires both strategies the way the engine does.
type rig struct {
	syncQueue  *dispatch.TaskQueue
	asyncQueue *dispatch.TaskQueue
	syncPool   *async.ThreadPool
	asyncPool  *async.ThreadPool
	sync       *SyncDeliverer
	async      *AsyncDeliverer
}

func newRig(t *testing.T, sched dispatch.Scheduler) *rig {
	t.Helper()
	r := &rig{
		syncQueue:  dispatch.NewTaskQueue(),
		asyncQueue: dispatch.NewTaskQueue(),
		syncPool:   async.NewThreadPool("sync", 4, async.WithDaemon(true)),
		asyncPool:  async.NewThreadPool("async", 2),
	}
	r.sync = NewSyncDeliverer(r.syncQueue, r.syncPool)
	r.async = NewAsyncDeliverer(r.asyncQueue, r.asyncPool, r.sync)
	r.sync.Execute(dispatch.NewLoop(r.syncQueue, sched, r.sync))
	r.async.Execute(dispatch.NewLoop(r.asyncQueue, sched, r.async))

	t.Cleanup(func() {
		r.syncQueue.Close(nil)
		r.asyncQueue.Close(nil)
		r.syncPool.Close()
		r.asyncPool.Close()
	})
	return r
}

// publishSync picks the strategy the engine would pick for ctx.
func (r *rig) publishSync(ctx context.Context, tasks ...dispatch.Task) error {
	return r.asyncPool.LookupCallback(ctx, r.sync).Deliver(ctx, tasks)
}

func (r *rig) publishAsync(ctx context.Context, tasks ...dispatch.Task) error {
	return r.async.Deliver(ctx, tasks)
}

func task(name string, fn func(ctx context.Context) error) *HandlerTask {
	return NewHandlerTask(NewHandlerFunc(name, func(ctx context.Context, _ Event) error {
		return fn(ctx)
	}), Event{ID: "evt-1", Topic: "orders"}, TaskOptions{})
}

// journal records entries in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}
