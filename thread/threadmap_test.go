// File: thread/threadmap_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/ipc"
)

// harness wires one loop, one connection, and one ThreadMap server.
type harness struct {
	loop     *ipc.EventLoop
	ref      *ipc.LoopRef
	loopDone chan struct{}
	conn     *ipc.Connection
	registry *Registry
	ms       *MapServer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop, err := ipc.NewEventLoop(ipc.WithExeName("unit"))
	require.NoError(t, err)
	h := &harness{
		loop:     loop,
		ref:      loop.Ref(),
		loopDone: make(chan struct{}),
		registry: NewRegistry(),
	}
	go func() {
		loop.Serve()
		close(h.loopDone)
	}()
	h.conn = ipc.NewConnection(loop)
	h.ms = NewMapServer(h.conn, h.registry)
	return h
}

func (h *harness) shutdown(t *testing.T) {
	t.Helper()
	h.conn.Close()
	h.ref.Release()
	select {
	case <-h.loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not terminate")
	}
}

func TestMakeThread_NamesCarryOrigin(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	th, err := h.ms.MakeThread("client main")
	require.NoError(t, err)
	require.Equal(t, "unit (from client main)", th.Name())

	// The context is immediately addressable: the spawn handshake completed
	// before MakeThread returned.
	_, ok := h.registry.Lookup(th.Name())
	require.True(t, ok)
}

func TestMakeThread_GetNameOverCallPath(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	th, err := h.ms.MakeThread("client main")
	require.NoError(t, err)

	name, err := th.GetName()
	require.NoError(t, err)
	require.Equal(t, th.Name(), name)
}

func TestMakeThread_CallRunsOnNamedContext(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	th, err := h.ms.MakeThread("client main")
	require.NoError(t, err)

	// Routing the call onto the thread's own context exercises the
	// registry runner end to end.
	res, err := th.Call(MethodGetName, nil, ipc.OnThread(th.Name()))
	require.NoError(t, err)
	require.Equal(t, th.Name(), string(res))
}

func TestMakeThread_DuplicateOriginsGetDistinctNames(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	a, err := h.ms.MakeThread("origin")
	require.NoError(t, err)
	b, err := h.ms.MakeThread("origin")
	require.NoError(t, err)

	require.NotEqual(t, a.Name(), b.Name())
	require.Equal(t, "unit (from origin) #2", b.Name())
	require.Equal(t, 2, h.registry.Len())
}

func TestTeardown_JoinsContextThreads(t *testing.T) {
	h := newHarness(t)

	_, err := h.ms.MakeThread("client main")
	require.NoError(t, err)
	require.Equal(t, 1, h.registry.Len())

	// Connection teardown destroys the Thread server on the async path,
	// which retires and joins the context thread.
	h.conn.Close()
	require.Eventually(t, func() bool {
		return h.registry.Len() == 0
	}, 5*time.Second, 5*time.Millisecond)

	h.ref.Release()
	select {
	case <-h.loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not terminate")
	}
}

func TestMapMethods_WireFormRoundtrip(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	// Drive makeThread the way a remote peer would: through the exported
	// bootstrap capability and the wire encoding of the result.
	_, err := h.ms.Export()
	require.NoError(t, err)
	mc := NewMapClient(h.conn, h.conn.ResolveHandle(0))

	th, err := mc.MakeThread("remote main")
	require.NoError(t, err)
	require.Equal(t, "unit (from remote main)", th.Name())

	name, err := th.GetName()
	require.NoError(t, err)
	require.Equal(t, th.Name(), name)
}

func TestMakeThread_CountsSpawns(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	mr := control.NewMetricsRegistry()
	ms := NewMapServer(h.conn, h.registry, WithMapMetrics(mr))
	_, err := ms.MakeThread("a")
	require.NoError(t, err)
	_, err = ms.MakeThread("b")
	require.NoError(t, err)
	require.Equal(t, uint64(2), mr.Counter(control.MetricThreadsSpawned))
}

func TestMakeThread_CacheSizeOption(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	ms := NewMapServer(h.conn, h.registry, WithCacheSize(1))
	th, err := ms.MakeThread("origin")
	require.NoError(t, err)
	ctx, ok := h.registry.Lookup(th.Name())
	require.True(t, ok)

	// The spawned context's caches honor the configured bound: the second
	// entry evicts the first.
	a, err := ms.MakeThread("a")
	require.NoError(t, err)
	b, err := ms.MakeThread("b")
	require.NoError(t, err)
	ctx.RequestThreads().Put("a", a)
	ctx.RequestThreads().Put("b", b)
	require.Equal(t, 1, ctx.RequestThreads().Len())
}

func TestThreadCaches_ReusePerOrigin(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	_, err := h.ms.Export()
	require.NoError(t, err)
	mc := NewMapClient(h.conn, h.conn.ResolveHandle(0))

	ctx := NewContext("caller")
	a, err := RequestThread(ctx, mc)
	require.NoError(t, err)
	b, err := RequestThread(ctx, mc)
	require.NoError(t, err)
	require.Same(t, a, b, "repeated requests reuse the cached thread")

	cb, err := CallbackThread(ctx, mc)
	require.NoError(t, err)
	require.NotSame(t, a, cb, "request and callback threads are distinct")
	require.Equal(t, 1, ctx.RequestThreads().Len())
	require.Equal(t, 1, ctx.CallbackThreads().Len())
}

func TestCache_EvictionClosesProxy(t *testing.T) {
	h := newHarness(t)
	defer h.shutdown(t)

	cache := NewCache(1)
	a, err := h.ms.MakeThread("a")
	require.NoError(t, err)
	b, err := h.ms.MakeThread("b")
	require.NoError(t, err)

	cache.Put("a", a)
	cache.Put("b", b) // evicts a, closing it
	require.Equal(t, 1, cache.Len())

	_, err = a.GetName()
	require.Error(t, err, "evicted proxy must be severed")
	name, err := b.GetName()
	require.NoError(t, err)
	require.Equal(t, b.Name(), name)
}
