package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// WorkerState is carried by every pool worker. It counts how deeply the
// worker is nested in handler invocations and holds the barrier pair used to
// hand a synchronous batch off to another loop.
//
// A nil *WorkerState describes a goroutine that is not a pool worker.
type WorkerState struct {
	id    string
	depth atomic.Int32

	mu    sync.Mutex
	start *Rendezvous
	done  *Rendezvous
}

func newWorkerState(id string) *WorkerState {
	return &WorkerState{
		id:    id,
		start: NewRendezvous(),
		done:  NewRendezvous(),
	}
}

// ID returns the worker id.
func (s *WorkerState) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Enter records that the worker entered a handler invocation.
func (s *WorkerState) Enter() {
	if s != nil {
		s.depth.Add(1)
	}
}

// Leave records that the worker left a handler invocation.
func (s *WorkerState) Leave() {
	if s != nil {
		s.depth.Add(-1)
	}
}

// Depth returns the current nesting depth.
func (s *WorkerState) Depth() int {
	if s == nil {
		return 0
	}
	return int(s.depth.Load())
}

// IsTopMostHandler reports whether the worker is outside any handler
// invocation, i.e. a synchronous publish from it starts a new delivery
// rather than cascading from one in progress.
func (s *WorkerState) IsTopMostHandler() bool {
	return s.Depth() == 0
}

// Barriers returns the start and done rendezvous of the worker.
func (s *WorkerState) Barriers() (start, done *Rendezvous) {
	if s == nil {
		return NewRendezvous(), NewRendezvous()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start, s.done
}

// ResetBarriers replaces both barriers with fresh ones. Broken barriers stay
// broken, so each hand-off starts from a new pair.
func (s *WorkerState) ResetBarriers() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start = NewRendezvous()
	s.done = NewRendezvous()
}

type workerKey struct{}

func withWorker(ctx context.Context, w *worker) context.Context {
	return context.WithValue(ctx, workerKey{}, w)
}

func workerFrom(ctx context.Context) *worker {
	if ctx == nil {
		return nil
	}
	w, _ := ctx.Value(workerKey{}).(*worker)
	return w
}

// WorkerStateFrom returns the state of the pool worker that ctx was derived
// from, or nil if ctx does not come from a pool worker.
func WorkerStateFrom(ctx context.Context) *WorkerState {
	if w := workerFrom(ctx); w != nil {
		return w.state
	}
	return nil
}
