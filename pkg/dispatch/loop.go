package dispatch

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	// StateRunning loops pull and execute tasks.
	StateRunning State = iota
	// StateHeld loops are paused until Resume; a continuation drains their queue.
	StateHeld
	// StateHandedOver loops have passed their queue to a continuation.
	StateHandedOver
	// StateStopped loops are inert.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHeld:
		return "held"
	case StateHandedOver:
		return "handed-over"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handover reasons reported to the Observer.
const (
	ReasonTimeout   = "timeout"
	ReasonRequested = "requested"
	ReasonHold      = "hold"
)

// Loop is the dispatch loop bound to one goroutine at a time.
//
// All fields below mu are guarded by it. No other lock is taken while mu is
// held across a blocking call.
type Loop struct {
	mu       sync.Mutex
	resumed  *sync.Cond
	producer Producer
	sched    Scheduler
	handover HandoverTarget
	observer Observer
	watchdog *watchdog
	state    State
	holding  bool
	// pending records a Resume that arrived before its Hold
	pending bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithObserver reports loop transitions to o. Continuations inherit it.
func WithObserver(o Observer) LoopOption {
	return func(l *Loop) {
		if o != nil {
			l.observer = o
		}
	}
}

// NewLoop creates a loop draining producer. A nil scheduler disables
// watchdogs; a nil handover target makes hand-over a plain stop.
func NewLoop(producer Producer, sched Scheduler, handover HandoverTarget, opts ...LoopOption) *Loop {
	if producer == nil {
		producer = nullProducer{}
	}
	if sched == nil {
		sched = NullScheduler
	}
	if handover == nil {
		handover = nullHandover{}
	}
	l := &Loop{
		producer: producer,
		sched:    sched,
		handover: handover,
		observer: nullObserver{},
	}
	l.resumed = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes tasks until the producer is exhausted or the loop has been
// handed over or stopped.
func (l *Loop) Run(ctx context.Context) {
	for {
		task := l.next()
		if task == nil {
			return
		}
		l.arm(task, 0, 0)
		task.Execute(ctx)
		l.disarm()
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Hold pauses the calling goroutine until Resume is called. Before blocking
// it cancels the watchdog and starts a continuation so the queue keeps
// flowing. On resume the watchdog is re-armed with whatever remained of the
// time budget; time spent held is not charged to the task.
//
// Every Hold is paired with one Resume. If the Resume came first, Hold
// consumes it and returns at once.
func (l *Loop) Hold() {
	l.mu.Lock()
	if l.pending {
		l.pending = false
		l.mu.Unlock()
		return
	}
	var (
		task    Task
		elapsed time.Duration
	)
	if wd := l.watchdog; wd != nil {
		l.watchdog = nil
		if wd.cancel() {
			task = wd.task
			elapsed = l.sched.Clock().Since(wd.start)
		}
	}
	var cont *Loop
	target := l.handover
	if l.state == StateRunning {
		cont = l.continuationLocked()
		l.state = StateHeld
	}
	l.holding = true
	l.mu.Unlock()

	if cont != nil {
		target.Execute(cont)
	}
	l.observer.Held()

	l.mu.Lock()
	for l.holding {
		l.resumed.Wait()
	}
	rearm := task != nil && l.state == StateHeld
	if l.state == StateHeld {
		l.state = StateRunning
	}
	l.mu.Unlock()

	if rearm {
		l.arm(task, -elapsed, elapsed)
	}
}

// Resume wakes a held loop. A Resume issued before the matching Hold is
// kept, and that Hold does not block. It reports whether the loop is still
// live, i.e. will go on draining its queue once its current task returns.
func (l *Loop) Resume() bool {
	l.mu.Lock()
	wasHolding := l.holding
	if wasHolding {
		l.holding = false
		l.resumed.Broadcast()
	} else {
		l.pending = true
	}
	live := l.state == StateHeld || l.state == StateRunning
	l.mu.Unlock()

	if wasHolding {
		l.observer.Resumed()
	}
	return live
}

// Handover cancels the watchdog, starts a continuation on the hand-over
// target and makes this loop inert. Held, handed-over and stopped loops are
// left alone.
func (l *Loop) Handover() {
	l.handoverFor(ReasonRequested)
}

// Stop cancels the watchdog and makes the loop inert without starting a
// continuation.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wd := l.watchdog; wd != nil {
		wd.cancel()
		l.watchdog = nil
	}
	l.producer = nullProducer{}
	l.sched = NullScheduler
	l.handover = nullHandover{}
	l.state = StateStopped
}

func (l *Loop) handoverFor(reason string) {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	if wd := l.watchdog; wd != nil {
		wd.cancel()
		l.watchdog = nil
	}
	target := l.handover
	cont := l.continuationLocked()
	l.producer = nullProducer{}
	l.sched = NullScheduler
	l.handover = nullHandover{}
	l.state = StateHandedOver
	l.mu.Unlock()

	target.Execute(cont)
	l.observer.HandedOver(reason)
}

// expired is called by a watchdog that fired.
func (l *Loop) expired(w *watchdog) {
	l.mu.Lock()
	if l.watchdog != w {
		l.mu.Unlock()
		return
	}
	l.watchdog = nil
	l.mu.Unlock()

	l.handoverFor(ReasonTimeout)
}

func (l *Loop) next() Task {
	l.mu.Lock()
	p := l.producer
	l.mu.Unlock()
	return p.Next()
}

// arm starts a watchdog for task. nice adjusts the delay, credited is the
// execution time already consumed by the task.
func (l *Loop) arm(task Task, nice, credited time.Duration) {
	if isTimeoutExempt(task) {
		return
	}
	l.mu.Lock()
	sched := l.sched
	if sched.Timeout() <= 0 || l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	wd := newWatchdog(l, task, sched.Clock().Now().Add(-credited))
	l.watchdog = wd
	l.mu.Unlock()

	wd.setTimer(sched.ScheduleNice(wd.fire, nice))
}

func (l *Loop) disarm() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wd := l.watchdog; wd != nil {
		wd.cancel()
		l.watchdog = nil
	}
}

func (l *Loop) continuationLocked() *Loop {
	return NewLoop(l.producer, l.sched, l.handover, WithObserver(l.observer))
}
