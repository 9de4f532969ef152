package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a scheduled callback that can be canceled.
type Timer interface {
	Stop() bool
}

// Scheduler runs watchdog callbacks after the configured timeout.
type Scheduler interface {
	// Schedule runs fn once the timeout has elapsed.
	Schedule(fn func()) Timer

	// ScheduleNice runs fn once timeout+nice has elapsed. A negative nice
	// shortens the delay; the delay never drops below zero.
	ScheduleNice(fn func(), nice time.Duration) Timer

	// Timeout returns the current time budget. Zero means watchdogs are off.
	Timeout() time.Duration

	// Clock returns the clock used to measure elapsed time.
	Clock() clockwork.Clock
}

// TimeoutScheduler schedules watchdogs on a clockwork clock. The timeout can
// be changed at runtime; a timeout <= 0 disables scheduling.
type TimeoutScheduler struct {
	clock   clockwork.Clock
	timeout atomic.Int64
}

// NewScheduler creates a scheduler with the given timeout. A nil clock uses
// the real clock.
func NewScheduler(timeout time.Duration, clock clockwork.Clock) *TimeoutScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &TimeoutScheduler{clock: clock}
	s.SetTimeout(timeout)
	return s
}

// SetTimeout changes the timeout for watchdogs scheduled from now on.
func (s *TimeoutScheduler) SetTimeout(timeout time.Duration) {
	if timeout < 0 {
		timeout = 0
	}
	s.timeout.Store(int64(timeout))
}

// Timeout implements Scheduler.
func (s *TimeoutScheduler) Timeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// Clock implements Scheduler.
func (s *TimeoutScheduler) Clock() clockwork.Clock {
	return s.clock
}

// Schedule implements Scheduler.
func (s *TimeoutScheduler) Schedule(fn func()) Timer {
	return s.ScheduleNice(fn, 0)
}

// ScheduleNice implements Scheduler.
func (s *TimeoutScheduler) ScheduleNice(fn func(), nice time.Duration) Timer {
	timeout := s.Timeout()
	if timeout <= 0 {
		return nullTimer{}
	}
	delay := timeout + nice
	if delay < 0 {
		delay = 0
	}
	return s.clock.AfterFunc(delay, fn)
}

// NullScheduler never schedules anything. Stopped loops hold it.
var NullScheduler Scheduler = nullScheduler{}

type nullScheduler struct{}

var realClock = clockwork.NewRealClock()

func (nullScheduler) Schedule(func()) Timer                   { return nullTimer{} }
func (nullScheduler) ScheduleNice(func(), time.Duration) Timer { return nullTimer{} }
func (nullScheduler) Timeout() time.Duration                   { return 0 }
func (nullScheduler) Clock() clockwork.Clock                   { return realClock }

type nullTimer struct{}

func (nullTimer) Stop() bool { return true }
