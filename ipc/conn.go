// File: ipc/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns the two-phase cleanup protocol tearing down all proxy state
// for one peer link.
//
// Proxy client cleanup handlers live in the sync list and proxy server
// cleanup handlers in the async list. The sync handlers are fast: they only
// null capability references so new client calls fail immediately without
// touching the transport or the loop. The async handlers run user-defined
// destructors that may block or re-enter the runtime, so they execute on the
// async worker thread — and only after every sync handler has finished, which
// guarantees client references are fully severed before any implementation
// destructor can observe (or call back into) the half-torn-down connection.

package ipc

import (
	"container/list"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
)

// CleanupHandle identifies one registered sync cleanup closure so its owner
// can unregister it when destroyed before the connection is.
type CleanupHandle struct {
	el *list.Element
}

// Connection represents one peer link bound to an event loop. Its cleanup
// lists are guarded by the loop's mutex: one lock domain per event loop, so
// teardown cannot order-invert against loop bookkeeping.
type Connection struct {
	loop *EventLoop
	id   string
	log  *zap.Logger
	ref  *LoopRef

	exports  *CapTable
	resolver func(api.Handle) api.Capability

	onDisconnect *Registry

	// guarded by loop.mu
	syncCleanups  *list.List
	asyncCleanups *list.List
	closed        bool
}

// ConnOption customizes a new Connection.
type ConnOption func(*Connection)

// WithConnLogger attaches a structured logger to the connection.
func WithConnLogger(log *zap.Logger) ConnOption {
	return func(c *Connection) { c.log = log }
}

// NewConnection binds a new peer link to loop, holding a client reference on
// it until teardown releases the link.
func NewConnection(loop *EventLoop, opts ...ConnOption) *Connection {
	c := &Connection{
		loop:          loop,
		id:            uuid.NewString(),
		log:           zap.NewNop(),
		exports:       NewCapTable(),
		onDisconnect:  NewRegistry(),
		syncCleanups:  list.New(),
		asyncCleanups: list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = func(h api.Handle) api.Capability {
		return CapabilityFor(c.exports, h)
	}
	c.log = c.log.Named("ipc.conn").With(
		zap.String("conn_id", c.id),
		zap.String("exe", loop.ExeName()),
	)
	c.ref = loop.Ref()
	return c
}

// Loop returns the event loop this connection belongs to.
func (c *Connection) Loop() *EventLoop { return c.loop }

// ID returns the connection's identity used in logs and cache keys.
func (c *Connection) ID() string { return c.id }

// Table returns the table of capabilities this side exports to the peer.
func (c *Connection) Table() *CapTable { return c.exports }

// ResolveHandle turns a capability handle received from the peer into an
// invokable reference. The default resolver addresses the local export table;
// remote substrates install their own with SetResolver.
func (c *Connection) ResolveHandle(h api.Handle) api.Capability {
	return c.resolver(h)
}

// SetResolver replaces the handle resolver. Must be called before the
// connection is shared across threads.
func (c *Connection) SetResolver(fn func(api.Handle) api.Capability) {
	c.resolver = fn
}

// AddSyncCleanup registers a closure to run synchronously at teardown.
// Entries run in reverse registration order (most recently added first).
// Sync closures must be fast and non-blocking: their one job is to null out
// client-side capability state.
func (c *Connection) AddSyncCleanup(fn func()) CleanupHandle {
	c.loop.mu.Lock()
	defer c.loop.mu.Unlock()
	return CleanupHandle{el: c.syncCleanups.PushFront(fn)}
}

// RemoveSyncCleanup unregisters a closure added with AddSyncCleanup. Safe to
// call after teardown already consumed the entry.
func (c *Connection) RemoveSyncCleanup(h CleanupHandle) {
	if h.el == nil {
		return
	}
	c.loop.mu.Lock()
	defer c.loop.mu.Unlock()
	c.syncCleanups.Remove(h.el)
}

// AddAsyncCleanup registers a closure that may block or run arbitrary
// implementation code at teardown. It is queued for the loop's async worker,
// never run inline.
func (c *Connection) AddAsyncCleanup(fn func()) {
	c.loop.mu.Lock()
	defer c.loop.mu.Unlock()
	c.asyncCleanups.PushFront(fn)
}

// OnDisconnect subscribes fn to connection teardown. The handler runs on the
// loop thread after the sync phase, so every client reference is already
// severed when it fires; it must not block.
func (c *Connection) OnDisconnect(fn func()) api.Subscription {
	return c.onDisconnect.Subscribe(fn)
}

var _ api.DisconnectNotifier = (*Connection)(nil)

// Close tears the connection down. It marshals itself onto the loop thread,
// so it may be called from anywhere; calling it twice is a no-op. Phase one
// drains the sync list (reverse registration order) and invalidates the
// export table; phase two batch-moves the async closures onto the loop's
// async queue, starts the worker, and releases the connection's client
// reference.
func (c *Connection) Close() {
	if err := c.loop.Post(c.teardown); err != nil {
		// Loop already terminated: every client reference was released,
		// which can only happen after this connection was torn down.
		c.log.Debug("close after loop termination", zap.Error(err))
	}
}

// teardown runs on the loop thread.
func (c *Connection) teardown() {
	c.loop.mu.Lock()
	if c.closed {
		c.loop.mu.Unlock()
		return
	}
	c.closed = true

	// Phase one: sever every client reference. Runs inline, front to back,
	// which is reverse registration order. The lock is dropped around each
	// closure because severing re-enters the loop's lock domain.
	for c.syncCleanups.Len() > 0 {
		el := c.syncCleanups.Front()
		fn := el.Value.(func())
		c.syncCleanups.Remove(el)
		c.loop.mu.Unlock()
		fn()
		c.loop.mu.Lock()
	}
	c.loop.mu.Unlock()

	// Racing dispatches fail fast from here on.
	c.exports.Close()
	c.log.Debug("connection severed")

	c.loop.mu.Lock()
	// Phase two: hand the blocking cleanup work to the async worker in one
	// batch, preserving the connection-local order.
	moved := 0
	for c.asyncCleanups.Len() > 0 {
		el := c.asyncCleanups.Front()
		c.loop.asyncFns.Add(el.Value.(func()))
		c.asyncCleanups.Remove(el)
		moved++
	}
	c.loop.startAsyncLocked()
	c.loop.mu.Unlock()

	c.onDisconnect.notify()
	if moved > 0 {
		c.log.Debug("async cleanup scheduled", zap.Int("closures", moved))
	}
	c.ref.Release()
}
