package delivery

import (
	"context"
	"sync"

	"github.com/platinummonkey/eventbus/pkg/async"
	"github.com/platinummonkey/eventbus/pkg/dispatch"
)

// marker tasks run no handler and are never watched
type marker struct{}

func (marker) Impair()             {}
func (marker) TimeoutExempt() bool { return true }

// BlockTask releases its waiters when executed. Placed after a batch, it
// signals that the whole batch was delivered.
type BlockTask struct {
	marker
	once sync.Once
	done chan struct{}
}

// NewBlockTask creates an unreleased block task.
func NewBlockTask() *BlockTask {
	return &BlockTask{done: make(chan struct{})}
}

// Execute implements dispatch.Task.
func (b *BlockTask) Execute(context.Context) {
	b.once.Do(func() { close(b.done) })
}

// Done is closed once the task has executed.
func (b *BlockTask) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the task executed or ctx is done.
func (b *BlockTask) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resumeTask ends a reentrant batch: it stops the loop that delivered the
// batch and resumes the held loop of the publisher.
type resumeTask struct {
	marker
	target *dispatch.Loop
	pool   *async.ThreadPool
}

func (r *resumeTask) Execute(ctx context.Context) {
	current := r.pool.LookupLoop(ctx, nil)
	if current != nil && current != r.target && r.target.State() == dispatch.StateHeld {
		current.Stop()
	}
	r.target.Resume()
}

// rendezvousTask meets the publisher on a barrier.
type rendezvousTask struct {
	marker
	barrier *async.Rendezvous
}

func (r *rendezvousTask) Execute(context.Context) {
	r.barrier.Wait()
}
