package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/platinummonkey/eventbus/pkg/dispatch"
	"github.com/platinummonkey/eventbus/pkg/observability"
)

// ErrInvalidPoolSize is returned by ValidatePoolSize.
var ErrInvalidPoolSize = errors.New("async: pool size must be at least 1")

// ValidatePoolSize checks a requested pool size.
func ValidatePoolSize(size int) error {
	if size < 1 {
		return ErrInvalidPoolSize
	}
	return nil
}

// PoolOption configures a ThreadPool.
type PoolOption func(*ThreadPool)

// WithLogger sets the pool logger.
func WithLogger(logger *observability.Logger) PoolOption {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records pool metrics.
func WithMetrics(metrics *observability.Metrics) PoolOption {
	return func(p *ThreadPool) {
		p.metrics = metrics
	}
}

// WithDaemon marks the workers as daemon workers: Wait never waits for them.
func WithDaemon(daemon bool) PoolOption {
	return func(p *ThreadPool) {
		p.daemon = daemon
	}
}

// PoolStats is a snapshot of a pool.
type PoolStats struct {
	Name        string `json:"name"`
	Size        int    `json:"size"`
	Pooled      int    `json:"pooled"`
	Busy        int    `json:"busy"`
	Live        int64  `json:"live"`
	Submissions int64  `json:"submissions"`
	Evictions   int64  `json:"evictions"`
	Unpooled    int64  `json:"unpooled"`
	Daemon      bool   `json:"daemon"`
	Closed      bool   `json:"closed"`
}

// ThreadPool runs dispatch loops on a bounded set of reusable workers.
//
// Submit never blocks: when every pooled worker is busy the least recently
// used one is decoupled (it finishes its loop and exits) and a fresh worker
// takes its slot. After Close every submission runs on an unpooled worker.
//
// The slot array and the LRU index are only touched under mu. Workers wait
// for assignments on condition variables bound to mu.
type ThreadPool struct {
	name    string
	logger  *observability.Logger
	metrics *observability.Metrics
	daemon  bool

	mu     sync.Mutex
	slots  []*worker
	lru    *simplelru.LRU[int, struct{}]
	closed bool

	wg          sync.WaitGroup
	live        atomic.Int64
	submissions atomic.Int64
	evictions   atomic.Int64
	unpooled    atomic.Int64
}

// NewThreadPool creates a pool with size slots. Sizes below 1 are raised
// to 1.
func NewThreadPool(name string, size int, opts ...PoolOption) *ThreadPool {
	if ValidatePoolSize(size) != nil {
		size = 1
	}
	p := &ThreadPool{
		name:   name,
		logger: observability.NewNopLogger(),
		slots:  make([]*worker, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("pool", name)

	// size is at least 1, the only error NewLRU returns
	p.lru, _ = simplelru.NewLRU[int, struct{}](size, nil)
	return p
}

// Name returns the pool name.
func (p *ThreadPool) Name() string {
	return p.name
}

// Submit runs loop on a worker and binds callback to that worker for as long
// as the loop runs.
func (p *ThreadPool) Submit(loop *dispatch.Loop, callback dispatch.Deliverer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.submissions.Add(1)
	p.metrics.RecordSubmission(p.name)

	if p.closed {
		p.unpooled.Add(1)
		p.metrics.RecordUnpooled(p.name)
		p.spawnLocked(-1, loop, callback)
		return
	}

	for i, w := range p.slots {
		if w == nil {
			p.slots[i] = p.spawnLocked(i, loop, callback)
			p.lru.Add(i, struct{}{})
			p.metrics.SetPoolWorkers(p.name, p.pooledLocked())
			return
		}
	}

	for _, i := range p.lru.Keys() {
		if w := p.slots[i]; w.idleLocked() {
			w.assignLocked(loop, callback)
			p.lru.Get(i)
			return
		}
	}

	slot, _, ok := p.lru.GetOldest()
	if !ok {
		// every slot is filled, so the index cannot be empty
		p.spawnLocked(-1, loop, callback)
		return
	}
	p.slots[slot].decoupleLocked()
	p.slots[slot] = p.spawnLocked(slot, loop, callback)
	p.lru.Get(slot)

	p.evictions.Add(1)
	p.metrics.RecordEviction(p.name)
	p.logger.WithField("slot", slot).Debug("Pool saturated, decoupled least recently used worker")
}

// LookupCallback returns the callback bound to the worker that ctx comes
// from, or def if ctx does not come from a busy worker of this pool.
func (p *ThreadPool) LookupCallback(ctx context.Context, def dispatch.Deliverer) dispatch.Deliverer {
	w := workerFrom(ctx)
	if w == nil || w.pool != p {
		return def
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if w.callback == nil {
		return def
	}
	return w.callback
}

// LookupLoop returns the loop run by the worker that ctx comes from, or def
// if ctx does not come from a busy worker of this pool.
func (p *ThreadPool) LookupLoop(ctx context.Context, def *dispatch.Loop) *dispatch.Loop {
	w := workerFrom(ctx)
	if w == nil || w.pool != p {
		return def
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if w.loop == nil {
		return def
	}
	return w.loop
}

// Owns reports whether ctx comes from a worker of this pool.
func (p *ThreadPool) Owns(ctx context.Context) bool {
	w := workerFrom(ctx)
	return w != nil && w.pool == p
}

// Configure resizes the pool. Shrinking decouples the workers of the
// dropped slots; busy ones finish their loop first.
func (p *ThreadPool) Configure(size int) error {
	if err := ValidatePoolSize(size); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || size == len(p.slots) {
		return nil
	}

	if size < len(p.slots) {
		for i := size; i < len(p.slots); i++ {
			if w := p.slots[i]; w != nil {
				w.decoupleLocked()
				p.lru.Remove(i)
			}
		}
		p.slots = p.slots[:size]
	} else {
		p.slots = append(p.slots, make([]*worker, size-len(p.slots))...)
	}
	p.lru.Resize(size)
	p.metrics.SetPoolWorkers(p.name, p.pooledLocked())

	p.logger.WithField("size", size).Debug("Pool resized")
	return nil
}

// Close stops pooling. Idle workers exit; busy workers finish their loop
// and then exit. Later submissions run unpooled.
func (p *ThreadPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for i, w := range p.slots {
		if w != nil {
			w.decoupleLocked()
			p.slots[i] = nil
		}
	}
	p.lru.Purge()
	p.metrics.SetPoolWorkers(p.name, 0)
}

// Wait blocks until every worker has exited or ctx is done. Daemon pools
// return immediately.
func (p *ThreadPool) Wait(ctx context.Context) error {
	if p.daemon {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool.
func (p *ThreadPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	busy := 0
	for _, w := range p.slots {
		if w != nil && !w.idleLocked() {
			busy++
		}
	}
	return PoolStats{
		Name:        p.name,
		Size:        len(p.slots),
		Pooled:      p.pooledLocked(),
		Busy:        busy,
		Live:        p.live.Load(),
		Submissions: p.submissions.Load(),
		Evictions:   p.evictions.Load(),
		Unpooled:    p.unpooled.Load(),
		Daemon:      p.daemon,
		Closed:      p.closed,
	}
}

func (p *ThreadPool) pooledLocked() int {
	n := 0
	for _, w := range p.slots {
		if w != nil {
			n++
		}
	}
	return n
}

// spawnLocked starts a worker already assigned to loop. slot is -1 for an
// unpooled worker.
func (p *ThreadPool) spawnLocked(slot int, loop *dispatch.Loop, callback dispatch.Deliverer) *worker {
	id := uuid.NewString()
	w := &worker{
		id:     id,
		pool:   p,
		state:  newWorkerState(id),
		pooled: slot >= 0,
	}
	w.wake = sync.NewCond(&p.mu)
	w.loop = loop
	w.callback = callback

	p.wg.Add(1)
	p.live.Add(1)
	SafeGo(p.logger, "pool worker", w.run)
	return w
}
