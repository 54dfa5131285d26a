package acceptor

import (
	"time"

	"forwardproxy/internal/metrics"
)

// acquireTimeout bounds how long Acquire waits for a free slot before
// giving up and letting the caller reject the connection outright.
const acquireTimeout = 2 * time.Second

// Limiter bounds the number of connections handled concurrently,
// adapted from an HTTP admission-queue pattern: a fixed-size slot
// channel plays the role of a semaphore, and slots are acquired before
// a connection is handed to its worker and released when the worker
// finishes.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter returns a Limiter admitting at most max connections at
// once. max <= 0 disables the limiter (nil is a valid, always-nil
// *Limiter that callers treat as "unbounded").
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		return nil
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks up to acquireTimeout for a free slot. It reports
// false if no slot became available in time, in which case the caller
// must not call Release.
func (l *Limiter) Acquire() bool {
	start := time.Now()
	select {
	case l.slots <- struct{}{}:
		metrics.AdmissionWaitObserve(time.Since(start))
		metrics.AdmissionInUseSet(len(l.slots))
		return true
	case <-time.After(acquireTimeout):
		metrics.AdmissionRejected()
		return false
	}
}

// Release frees the slot acquired by a matching Acquire call.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
	}
	metrics.AdmissionInUseSet(len(l.slots))
}
