package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// fnTask is a Task backed by a function.
type fnTask struct {
	id       int
	run      func(ctx context.Context)
	exempt   bool
	impaired atomic.Int32
}

func (t *fnTask) Execute(ctx context.Context) {
	if t.run != nil {
		t.run(ctx)
	}
}

func (t *fnTask) Impair() { t.impaired.Add(1) }

func (t *fnTask) TimeoutExempt() bool { return t.exempt }

// recorder collects task ids in execution order.
type recorder struct {
	mu  sync.Mutex
	ids []int
}

func (r *recorder) task(id int) *fnTask {
	return &fnTask{id: id, run: func(context.Context) {
		r.mu.Lock()
		r.ids = append(r.ids, id)
		r.mu.Unlock()
	}}
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ids...)
}

// goTarget runs every continuation on its own goroutine.
type goTarget struct {
	mu    sync.Mutex
	loops []*Loop
	wg    sync.WaitGroup
}

func (g *goTarget) Execute(loop *Loop) {
	g.mu.Lock()
	g.loops = append(g.loops, loop)
	g.mu.Unlock()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		loop.Run(context.Background())
	}()
}

func (g *goTarget) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.loops)
}

// countingObserver counts loop transitions.
type countingObserver struct {
	handovers atomic.Int32
	holds     atomic.Int32
	resumes   atomic.Int32
	reasons   sync.Map
}

func (o *countingObserver) HandedOver(reason string) {
	o.handovers.Add(1)
	o.reasons.Store(reason, true)
}
func (o *countingObserver) Held()    { o.holds.Add(1) }
func (o *countingObserver) Resumed() { o.resumes.Add(1) }
