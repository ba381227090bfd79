// File: ipc/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ProxyClientBase is the generic half every generated interface client
// embeds: a capability reference, the connection it lives on, and the
// sync-cleanup entry that severs the reference at teardown.

package ipc

import (
	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/core/concurrency"
)

// ProxyClientBase forwards method calls as remote requests and presents
// synchronous call semantics to the caller regardless of the asynchronous
// transport underneath.
type ProxyClientBase struct {
	conn    *Connection
	cleanup CleanupHandle
	destroy func()

	// capability is guarded by the loop mutex; nil once severed, so any
	// racing call fails immediately without touching the transport.
	capability api.Capability
}

// ClientOption customizes proxy client construction.
type ClientOption func(*ProxyClientBase)

// WithDestroyHook runs fn when the client is closed, before the cleanup
// entry is unregistered. Generated proxies use it to notify the server side.
func WithDestroyHook(fn func()) ClientOption {
	return func(p *ProxyClientBase) { p.destroy = fn }
}

// MakeProxyClient binds a received capability to conn and registers the
// sync-cleanup closure that will sever it at teardown.
func MakeProxyClient(conn *Connection, capability api.Capability, opts ...ClientOption) *ProxyClientBase {
	p := &ProxyClientBase{conn: conn, capability: capability}
	for _, opt := range opts {
		opt(p)
	}
	p.cleanup = conn.AddSyncCleanup(p.sever)
	return p
}

// Conn returns the connection this proxy is bound to.
func (p *ProxyClientBase) Conn() *Connection { return p.conn }

// CallOption customizes one invocation.
type CallOption func(*api.Call)

// OnThread requests the server side to run the call on the execution
// context registered under name.
func OnThread(name string) CallOption {
	return func(c *api.Call) { c.Thread = name }
}

// Call marshals one invocation onto the loop thread, blocks until the remote
// result resolves, and returns it. A severed proxy fails immediately with
// ErrDisconnected and generates no transport activity.
func (p *ProxyClientBase) Call(method string, args []byte, opts ...CallOption) ([]byte, error) {
	return p.CallFrom(nil, method, args, opts...)
}

// CallFrom is Call for callers that own a remotely drivable thread: while
// blocked on the result it keeps the caller's Waiter serviced, so callback
// re-entry into the calling thread cannot deadlock against the very request
// that thread is waiting on. A nil waiter degrades to a plain blocking wait.
func (p *ProxyClientBase) CallFrom(w *concurrency.Waiter, method string, args []byte, opts ...CallOption) ([]byte, error) {
	loop := p.conn.loop
	loop.mu.Lock()
	capability := p.capability
	loop.mu.Unlock()
	if capability == nil {
		return nil, api.ErrDisconnected
	}

	call := &api.Call{Method: method, Args: args}
	for _, opt := range opts {
		opt(call)
	}

	var fut api.Future
	err := loop.Post(func() {
		// Re-check under the lock: teardown may have severed the proxy
		// between the fast check above and this closure running.
		loop.mu.Lock()
		capability := p.capability
		loop.mu.Unlock()
		if capability == nil {
			fut = FailedFuture(api.ErrDisconnected)
			return
		}
		fut = capability.Invoke(call)
	})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return fut.Await()
	}

	// Bridge the future onto the caller's waiter and service it until the
	// result lands.
	var (
		data []byte
		res  error
		got  bool
	)
	go func() {
		d, e := fut.Await()
		deliver := func() { data, res, got = d, e, true }
		if w.TryPost(deliver) {
			return
		}
		// Slot busy with inbound work: block off-thread until it frees.
		// On a retired waiter the WaitUntil below exits via shutdown.
		_ = w.Post(deliver)
	}()
	w.WaitUntil(func() bool { return got })
	if !got {
		return nil, api.ErrDisconnected
	}
	return data, res
}

// Close destroys the proxy: runs the destroy hook, unregisters the cleanup
// entry, and severs the capability so subsequent calls fail fast.
func (p *ProxyClientBase) Close() {
	if p.destroy != nil {
		p.destroy()
	}
	p.conn.RemoveSyncCleanup(p.cleanup)
	p.sever()
}

// sever nulls the capability reference. Runs as the proxy's sync cleanup on
// the loop thread during teardown, or inline from Close.
func (p *ProxyClientBase) sever() {
	loop := p.conn.loop
	loop.mu.Lock()
	capability := p.capability
	p.capability = nil
	loop.mu.Unlock()
	if capability != nil {
		capability.Release()
	}
}
