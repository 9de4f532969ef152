package async

import (
	"context"
	"sync"

	"github.com/platinummonkey/eventbus/pkg/dispatch"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// worker is one goroutine of a ThreadPool. Every field below wake is guarded
// by the pool mutex.
type worker struct {
	id    string
	pool  *ThreadPool
	state *WorkerState

	wake     *sync.Cond
	pooled   bool
	loop     *dispatch.Loop
	callback dispatch.Deliverer
}

func (w *worker) idleLocked() bool {
	return w.loop == nil
}

func (w *worker) assignLocked(loop *dispatch.Loop, callback dispatch.Deliverer) {
	w.loop = loop
	w.callback = callback
	w.wake.Signal()
}

// decoupleLocked removes the worker from the pool. It exits once its current
// loop, if any, returns.
func (w *worker) decoupleLocked() {
	w.pooled = false
	w.wake.Signal()
}

func (w *worker) run() {
	p := w.pool
	defer p.wg.Done()
	defer p.live.Add(-1)

	ctx := withWorker(context.Background(), w)
	log := p.logger.WithField("worker", w.id)

	p.mu.Lock()
	for {
		for w.loop == nil && w.pooled {
			w.wake.Wait()
		}
		loop := w.loop
		if loop == nil {
			p.mu.Unlock()
			log.Debug("Worker exiting")
			return
		}
		p.mu.Unlock()

		w.execute(ctx, loop, log)

		p.mu.Lock()
		w.loop = nil
		w.callback = nil
		if !w.pooled {
			p.mu.Unlock()
			log.Debug("Decoupled worker exiting")
			return
		}
	}
}

func (w *worker) execute(ctx context.Context, loop *dispatch.Loop, log *observability.Logger) {
	defer observability.RecoverPanic(log, "dispatch loop")
	loop.Run(ctx)
}
