// File: ipc/conn_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ipc/api"
)

func TestConnection_SyncCleanupsRunInReverseOrder(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		conn.AddSyncCleanup(func() { order = append(order, i) })
	}
	conn.Close()
	require.Equal(t, []int{3, 2, 1}, order)

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_RemovedCleanupDoesNotRun(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	ran := false
	h := conn.AddSyncCleanup(func() { ran = true })
	conn.RemoveSyncCleanup(h)
	conn.RemoveSyncCleanup(h) // double removal is a no-op
	conn.Close()
	require.False(t, ran)

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_SyncPhaseCompletesBeforeAsync(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	asyncDone := make(chan struct{})
	conn.AddAsyncCleanup(func() {
		record("async")
		close(asyncDone)
	})
	conn.AddSyncCleanup(func() { record("sync") })

	conn.Close()
	<-asyncDone

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"sync", "async"}, order)

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	runs := 0
	conn.AddSyncCleanup(func() { runs++ })
	conn.Close()
	conn.Close()
	require.Equal(t, 1, runs)

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_ExportsFailFastAfterClose(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	h, err := conn.Table().Add(dispatcherFunc(func(call *api.Call, complete func([]byte, error)) {
		complete(nil, nil)
	}))
	require.NoError(t, err)
	require.Equal(t, api.Handle(0), h, "first export is the bootstrap handle")

	conn.Close()
	_, ok := conn.Table().Get(h)
	require.False(t, ok)
	_, err = conn.Table().Add(dispatcherFunc(nil))
	require.ErrorIs(t, err, api.ErrDisconnected)

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_OnDisconnectFiresAfterSever(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)

	severed := false
	conn.AddSyncCleanup(func() { severed = true })
	notified := false
	sub := conn.OnDisconnect(func() { notified = severed })

	conn.Close()
	require.True(t, notified, "handler must observe a fully severed connection")
	sub.Close()

	ref.Release()
	waitLoop(t, done)
}

func TestConnection_ReleasesLoopReference(t *testing.T) {
	loop, ref, done := startLoop(t)
	conn := NewConnection(loop)
	_ = conn

	ref.Release()
	select {
	case <-done:
		t.Fatal("loop terminated while the connection held it")
	case <-time.After(50 * time.Millisecond):
	}

	conn.Close()
	waitLoop(t, done)
}

// dispatcherFunc adapts a function to api.Dispatcher for table tests.
type dispatcherFunc func(*api.Call, func([]byte, error))

func (f dispatcherFunc) Dispatch(call *api.Call, complete func([]byte, error)) {
	f(call, complete)
}
