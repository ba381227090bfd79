// File: core/concurrency/waiter_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaiter_PostHandsOffToWaitingThread(t *testing.T) {
	w := NewWaiter()
	ran := make(chan struct{})

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	require.NoError(t, w.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("posted closure never ran")
	}

	w.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Shutdown")
	}
}

func TestWaiter_PostAfterShutdownFails(t *testing.T) {
	w := NewWaiter()
	w.Shutdown()
	require.ErrorIs(t, w.Post(func() {}), ErrWaiterClosed)
	require.False(t, w.TryPost(func() {}))
}

func TestWaiter_TryPostReportsBusySlot(t *testing.T) {
	w := NewWaiter()
	// No thread is waiting, so the first closure stays pending.
	require.True(t, w.TryPost(func() {}))
	require.False(t, w.TryPost(func() {}))
	require.False(t, w.Idle())
}

func TestWaiter_AtMostOnePending(t *testing.T) {
	w := NewWaiter()
	const posters = 8
	var mu sync.Mutex
	ran := 0

	done := make(chan struct{})
	go func() {
		w.WaitUntil(func() bool {
			mu.Lock()
			defer mu.Unlock()
			return ran == posters
		})
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Post(func() {
				mu.Lock()
				ran++
				mu.Unlock()
			}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntil never saw all closures")
	}
	require.Equal(t, posters, ran)
}

// A closure executed by WaitUntil may itself block in a nested WaitUntil and
// keep servicing later closures. This is the callback re-entry pattern the
// proxy call path depends on.
func TestWaiter_NestedWaitUntil(t *testing.T) {
	w := NewWaiter()
	var order []string
	outerDone := false

	done := make(chan struct{})
	go func() {
		w.WaitUntil(func() bool { return outerDone })
		close(done)
	}()

	inner := false
	require.NoError(t, w.Post(func() {
		order = append(order, "outer")
		// Blocks the owning thread at a nested level; the closure posted
		// below must still be picked up.
		w.WaitUntil(func() bool { return inner })
		order = append(order, "outer-resumed")
		outerDone = true
	}))
	require.NoError(t, w.Post(func() {
		order = append(order, "inner")
		inner = true
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested WaitUntil deadlocked")
	}
	require.Equal(t, []string{"outer", "inner", "outer-resumed"}, order)
}

func TestWaiter_ShutdownRunsPendingClosure(t *testing.T) {
	w := NewWaiter()
	ran := false
	require.True(t, w.TryPost(func() { ran = true }))
	w.Shutdown()
	w.Wait()
	require.True(t, ran)
}
