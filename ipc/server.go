// File: ipc/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ProxyServerBase is the generic half every generated interface server
// embeds: the wrapped implementation, an ownership flag, and the connection
// whose async cleanup path will eventually destroy it. Implementation
// destructors can run arbitrary blocking code, so destruction is always
// routed through the async worker, never inline during teardown.

package ipc

import (
	"github.com/momentics/hioload-ipc/api"
)

// MethodFunc adapts one implementation method to the opaque-payload calling
// convention. Generated per-interface code supplies these.
type MethodFunc func(args []byte) ([]byte, error)

// MethodMap is the dispatch table of one interface.
type MethodMap map[string]MethodFunc

// ProxyServerBase receives requests and invokes the real implementation on
// an execution context associated with the calling context.
type ProxyServerBase struct {
	conn    *Connection
	impl    any
	owned   bool
	methods MethodMap
	runner  api.Runner
	destroy func()
	handle  api.Handle
}

// ServerOption customizes proxy server construction.
type ServerOption func(*ProxyServerBase)

// Borrowed marks the implementation as owned by the application side: the
// wrapper will not destroy it on cleanup.
func Borrowed() ServerOption {
	return func(p *ProxyServerBase) { p.owned = false }
}

// WithRunner installs the thread-affinity runner used to land calls on the
// execution context named by the request.
func WithRunner(r api.Runner) ServerOption {
	return func(p *ProxyServerBase) { p.runner = r }
}

// WithServerDestroyHook runs fn at the start of InvokeDestroy, before the
// owned implementation is destroyed.
func WithServerDestroyHook(fn func()) ServerOption {
	return func(p *ProxyServerBase) { p.destroy = fn }
}

// MakeProxyServer exports impl on conn and returns its server wrapper. The
// implementation is owned (destroyed on cleanup) unless Borrowed is given.
// Destruction is registered on the connection's async cleanup list.
func MakeProxyServer(conn *Connection, impl any, methods MethodMap, opts ...ServerOption) (*ProxyServerBase, error) {
	p := &ProxyServerBase{conn: conn, impl: impl, owned: true, methods: methods}
	for _, opt := range opts {
		opt(p)
	}
	h, err := conn.Table().Add(p)
	if err != nil {
		return nil, err
	}
	p.handle = h
	conn.AddAsyncCleanup(p.InvokeDestroy)
	return p, nil
}

// Handle returns the capability handle this server is exported under.
func (p *ProxyServerBase) Handle() api.Handle { return p.handle }

// Conn returns the connection this server is exported on.
func (p *ProxyServerBase) Conn() *Connection { return p.conn }

// Impl returns the wrapped implementation object.
func (p *ProxyServerBase) Impl() any { return p.impl }

// Dispatch routes one call to the implementation. It runs on the loop thread
// and never blocks there: the method itself executes on the execution
// context named by the call, or on the loop's async worker when the call
// declares no affinity. complete fires exactly once.
func (p *ProxyServerBase) Dispatch(call *api.Call, complete func([]byte, error)) {
	m, ok := p.methods[call.Method]
	if !ok {
		complete(nil, api.NewError(api.ErrCodeNotFound, api.ErrMethodNotFound.Error()).
			WithContext("method", call.Method))
		return
	}
	run := func() {
		complete(m(call.Args))
	}
	if call.Thread != "" {
		if p.runner != nil && p.runner.Run(call.Thread, run) {
			return
		}
		complete(nil, api.NewError(api.ErrCodeNotFound, api.ErrThreadNotFound.Error()).
			WithContext("thread", call.Thread))
		return
	}
	p.conn.loop.RunAsync(run)
}

var _ api.Dispatcher = (*ProxyServerBase)(nil)

// InvokeDestroy runs the destroy hook, then destroys the implementation if
// owned. Reached only via the async cleanup path.
func (p *ProxyServerBase) InvokeDestroy() {
	if p.destroy != nil {
		p.destroy()
	}
	if !p.owned {
		return
	}
	if d, ok := p.impl.(api.Destroyable); ok {
		d.Destroy()
	}
}
