package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	watchdogArmed int32 = iota
	watchdogFired
	watchdogCanceled
)

// watchdog guards one in-flight task. Exactly one of cancel and fire wins.
type watchdog struct {
	task  Task
	loop  *Loop
	start time.Time
	state atomic.Int32

	mu    sync.Mutex
	timer Timer
}

func newWatchdog(loop *Loop, task Task, start time.Time) *watchdog {
	return &watchdog{task: task, loop: loop, start: start}
}

// setTimer attaches the scheduled timer. A watchdog canceled before its timer
// was attached stops the timer right away.
func (w *watchdog) setTimer(t Timer) {
	w.mu.Lock()
	w.timer = t
	w.mu.Unlock()
	if w.state.Load() == watchdogCanceled {
		t.Stop()
	}
}

// cancel disarms the watchdog. It returns false if the watchdog already fired.
func (w *watchdog) cancel() bool {
	if !w.state.CompareAndSwap(watchdogArmed, watchdogCanceled) {
		return w.state.Load() == watchdogCanceled
	}
	w.mu.Lock()
	t := w.timer
	w.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	return true
}

func (w *watchdog) fire() {
	if !w.state.CompareAndSwap(watchdogArmed, watchdogFired) {
		return
	}
	w.task.Impair()
	w.loop.expired(w)
}
