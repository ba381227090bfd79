// File: core/concurrency/waiter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Waiter is a minimal cross-thread handoff primitive: a mutex, a condition
// variable, and at most one pending closure. A thread that owns a Waiter
// blocks in Wait until another thread hands it work via Post or retires it
// via Shutdown. A thread only ever waits on its own Waiter.

package concurrency

import "sync"

// Waiter hands closures from posting threads to the single waiting thread.
type Waiter struct {
	mu   sync.Mutex
	cv   *sync.Cond
	fn   func()
	done bool
}

// NewWaiter creates an idle Waiter.
func NewWaiter() *Waiter {
	w := &Waiter{}
	w.cv = sync.NewCond(&w.mu)
	return w
}

// Post hands fn to the waiting thread. If a closure is already pending, Post
// blocks until the waiting thread has picked it up, preserving the
// at-most-one-pending invariant. Returns ErrWaiterClosed after Shutdown.
func (w *Waiter) Post(fn func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.fn != nil && !w.done {
		w.cv.Wait()
	}
	if w.done {
		return ErrWaiterClosed
	}
	w.fn = fn
	w.cv.Broadcast()
	return nil
}

// TryPost hands fn to the waiting thread without blocking. Reports false
// when a closure is already pending or the waiter is shut down.
func (w *Waiter) TryPost(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fn != nil || w.done {
		return false
	}
	w.fn = fn
	w.cv.Broadcast()
	return true
}

// Wait blocks the calling thread, executing posted closures as they arrive,
// until Shutdown is signaled. A pending closure handed over concurrently
// with Shutdown still runs before Wait returns.
func (w *Waiter) Wait() {
	w.WaitUntil(nil)
}

// WaitUntil blocks the owning thread, executing posted closures as they
// arrive, until pred reports true (checked after each closure and wakeup) or
// the waiter is shut down. A nil pred waits for shutdown alone.
//
// WaitUntil may nest: a closure it executes can itself call WaitUntil on the
// same waiter. This is what lets a thread blocked on a remote result keep
// servicing callback re-entry instead of deadlocking against it.
func (w *Waiter) WaitUntil(pred func() bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		if fn := w.fn; fn != nil {
			// Clear before executing: fn may nest back into WaitUntil,
			// and the nested level must not pick this closure up again.
			w.fn = nil
			w.cv.Broadcast()
			w.mu.Unlock()
			fn()
			w.mu.Lock()
		}
		if pred != nil && pred() {
			return
		}
		if w.done && w.fn == nil {
			return
		}
		if w.fn == nil {
			w.cv.Wait()
		}
	}
}

// Shutdown wakes the waiting thread with an empty pending state, which Wait
// interprets as the signal to return. Idempotent.
func (w *Waiter) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	w.cv.Broadcast()
}

// Idle reports whether no closure is currently pending. Advisory only: a
// non-idle waiter can still be shut down, the pending closure runs before
// Wait returns.
func (w *Waiter) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fn == nil
}
