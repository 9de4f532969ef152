package async

import (
	"sync"
	"sync/atomic"
	"time"
)

// Rendezvous is a two-party handshake: each call to Wait blocks until the
// counterpart arrives. The first WaitAttempt that times out breaks the
// rendezvous for good; every later wait returns immediately.
//
// A Rendezvous is reusable for successive handshakes between the same two
// parties until it times out.
type Rendezvous struct {
	mu       sync.Mutex
	waiting  chan struct{}
	timedOut atomic.Bool
}

// NewRendezvous creates an unbroken rendezvous.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{}
}

// Wait blocks until the other party arrives or the rendezvous is broken.
func (r *Rendezvous) Wait() {
	r.await(0, false)
}

// WaitAttempt blocks until the other party arrives or timeout elapses. It
// returns false if the rendezvous timed out, now or earlier.
func (r *Rendezvous) WaitAttempt(timeout time.Duration) bool {
	return r.await(timeout, true)
}

// TimedOut reports whether the rendezvous has been broken by a timeout.
func (r *Rendezvous) TimedOut() bool {
	return r.timedOut.Load()
}

func (r *Rendezvous) await(timeout time.Duration, bounded bool) bool {
	if r.timedOut.Load() {
		return false
	}

	r.mu.Lock()
	if r.timedOut.Load() {
		r.mu.Unlock()
		return false
	}
	if ch := r.waiting; ch != nil {
		// second party: release the first one
		r.waiting = nil
		close(ch)
		r.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	r.waiting = ch
	r.mu.Unlock()

	if !bounded {
		<-ch
		return !r.timedOut.Load()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting != ch {
		// the counterpart arrived while the timer fired
		return true
	}
	r.waiting = nil
	r.timedOut.Store(true)
	close(ch)
	return false
}
