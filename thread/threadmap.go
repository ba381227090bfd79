// File: thread/threadmap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Built-in Thread and ThreadMap proxy pairs. ThreadMap.MakeThread spawns a
// dedicated OS thread for a logical calling context; the spawning call does
// not return until the new thread has published its Context, so the returned
// proxy is immediately usable. The Thread server's destructor joins the
// thread and therefore always runs on the async cleanup path: joining
// synchronously on the event loop thread could deadlock against proxy
// destruction that itself needs the loop.

package thread

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/affinity"
	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/ipc"
)

// Method names of the built-in interfaces, as generated code would emit them.
const (
	MethodGetName    = "getName"
	MethodMakeThread = "makeThread"
)

var _ api.Runner = (*Registry)(nil)

// Client is the client half of the Thread interface: a handle to one remote
// context thread.
type Client struct {
	*ipc.ProxyClientBase
	name string
}

// NewClient wraps a Thread capability. name may be empty when unknown; it is
// the locally cached display name, GetName queries the server.
func NewClient(conn *ipc.Connection, capability api.Capability, name string) *Client {
	return &Client{
		ProxyClientBase: ipc.MakeProxyClient(conn, capability),
		name:            name,
	}
}

// Name returns the locally cached thread name without transport activity.
func (c *Client) Name() string { return c.name }

// GetName queries the thread's display name from the server side.
func (c *Client) GetName() (string, error) {
	res, err := c.Call(MethodGetName, nil)
	if err != nil {
		return "", err
	}
	return string(res), nil
}

// Server is the server half of the Thread interface: it owns one spawned
// context thread until destroyed.
type Server struct {
	ctx      *Context
	registry *Registry
	done     chan struct{} // closed when the OS thread exits
}

// GetName returns the owned thread's display name.
func (s *Server) GetName() string { return s.ctx.Name() }

// Context returns the owned thread's context.
func (s *Server) Context() *Context { return s.ctx }

// Destroy retires the owned thread: clears its proxy caches (they hold
// Thread clients whose teardown must not wait on this thread), signals its
// Waiter with an empty pending state, and joins. Runs on the async cleanup
// path only.
func (s *Server) Destroy() {
	w := s.ctx.Waiter()
	if w == nil {
		return
	}
	s.ctx.purgeCaches()
	w.Shutdown()
	<-s.done
}

var _ api.Destroyable = (*Server)(nil)

// Methods returns the Thread dispatch table for s.
func (s *Server) Methods() ipc.MethodMap {
	return ipc.MethodMap{
		MethodGetName: func([]byte) ([]byte, error) {
			return []byte(s.GetName()), nil
		},
	}
}

// MapServer implements the ThreadMap interface for one connection.
type MapServer struct {
	conn      *ipc.Connection
	registry  *Registry
	exe       string
	pin       int
	cacheSize int
	log       *zap.Logger
	metrics   *control.MetricsRegistry
}

// MapOption customizes a MapServer.
type MapOption func(*MapServer)

// WithPin pins spawned context threads to the given CPU.
func WithPin(cpu int) MapOption {
	return func(m *MapServer) { m.pin = cpu }
}

// WithCacheSize bounds the proxy caches of spawned contexts. Values below 1
// fall back to DefaultCacheSize.
func WithCacheSize(n int) MapOption {
	return func(m *MapServer) { m.cacheSize = n }
}

// WithMapLogger attaches a structured logger.
func WithMapLogger(log *zap.Logger) MapOption {
	return func(m *MapServer) { m.log = log }
}

// WithMapMetrics counts spawned context threads in mr.
func WithMapMetrics(mr *control.MetricsRegistry) MapOption {
	return func(m *MapServer) { m.metrics = mr }
}

// NewMapServer creates the ThreadMap server for conn, registering spawned
// contexts with registry so server dispatch can route calls onto them.
func NewMapServer(conn *ipc.Connection, registry *Registry, opts ...MapOption) *MapServer {
	m := &MapServer{
		conn:      conn,
		registry:  registry,
		exe:       conn.Loop().ExeName(),
		pin:       -1,
		cacheSize: DefaultCacheSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.Named("ipc.threadmap")
	return m
}

// Export exports the ThreadMap on its connection and returns the server
// wrapper; the registry doubles as the affinity runner for it.
func (m *MapServer) Export() (*ipc.ProxyServerBase, error) {
	return ipc.MakeProxyServer(m.conn, m, m.Methods(), ipc.WithRunner(m.registry))
}

// MakeThread spawns a context thread for the logical origin from and returns
// its Thread proxy. Blocks until the new thread has published its context.
func (m *MapServer) MakeThread(from string) (*Client, error) {
	h, name, err := m.makeThread(from)
	if err != nil {
		return nil, err
	}
	return NewClient(m.conn, m.conn.ResolveHandle(h), name), nil
}

// makeThread spawns the thread and exports its Thread server, returning the
// capability handle and the final registered name.
func (m *MapServer) makeThread(from string) (api.Handle, string, error) {
	display := fmt.Sprintf("%s (from %s)", m.exe, from)
	ready := make(chan *Context, 1)
	done := make(chan struct{})

	go func() {
		// The context thread stays an OS thread of its own for its whole
		// life: implementation code landed here may take thread-affine
		// locks or block for arbitrary time.
		runtime.LockOSThread()
		defer close(done)
		if m.pin >= 0 {
			if err := affinity.SetAffinity(m.pin); err != nil {
				m.log.Warn("context thread pin failed",
					zap.Int("cpu", m.pin), zap.Error(err))
			}
		}
		ctx := newServedContext(display, m.cacheSize)
		name := m.registry.register(ctx)
		ready <- ctx
		m.log.Debug("context thread started", zap.String("thread", name))
		ctx.Waiter().Wait()
		m.registry.unregister(name)
		m.log.Debug("context thread retired", zap.String("thread", name))
	}()

	ctx := <-ready // handshake: context published before we return
	srv := &Server{ctx: ctx, registry: m.registry, done: done}
	ps, err := ipc.MakeProxyServer(m.conn, srv, srv.Methods(), ipc.WithRunner(m.registry))
	if err != nil {
		// Table closed underneath us: retire the fresh thread again.
		srv.Destroy()
		return 0, "", err
	}
	if m.metrics != nil {
		m.metrics.Inc(control.MetricThreadsSpawned, 1)
	}
	return ps.Handle(), ctx.Name(), nil
}

// Methods returns the ThreadMap dispatch table for m. The wire result of
// makeThread is the 4-byte capability handle followed by the thread name.
func (m *MapServer) Methods() ipc.MethodMap {
	return ipc.MethodMap{
		MethodMakeThread: func(args []byte) ([]byte, error) {
			h, name, err := m.makeThread(string(args))
			if err != nil {
				return nil, err
			}
			res := make([]byte, 4+len(name))
			binary.BigEndian.PutUint32(res, uint32(h))
			copy(res[4:], name)
			return res, nil
		},
	}
}

// MapClient is the client half of the ThreadMap interface.
type MapClient struct {
	*ipc.ProxyClientBase
}

// NewMapClient wraps a ThreadMap capability.
func NewMapClient(conn *ipc.Connection, capability api.Capability) *MapClient {
	return &MapClient{ProxyClientBase: ipc.MakeProxyClient(conn, capability)}
}

// MakeThread asks the peer to spawn a context thread for the logical origin
// from, returning its Thread proxy once the remote handshake completed.
func (c *MapClient) MakeThread(from string) (*Client, error) {
	res, err := c.Call(MethodMakeThread, []byte(from))
	if err != nil {
		return nil, err
	}
	if len(res) < 4 {
		return nil, api.ErrInvalidArgument
	}
	h := api.Handle(binary.BigEndian.Uint32(res))
	name := string(res[4:])
	return NewClient(c.Conn(), c.Conn().ResolveHandle(h), name), nil
}

// RequestThread returns the thread this context uses for requests over the
// map client's connection, creating and caching it on first use.
func RequestThread(ctx *Context, mc *MapClient) (*Client, error) {
	return cachedThread(ctx.RequestThreads(), ctx, mc)
}

// CallbackThread returns the thread serving callback re-entry into this
// context over the map client's connection, creating and caching it on
// first use.
func CallbackThread(ctx *Context, mc *MapClient) (*Client, error) {
	return cachedThread(ctx.CallbackThreads(), ctx, mc)
}

func cachedThread(cache *Cache, ctx *Context, mc *MapClient) (*Client, error) {
	key := mc.Conn().ID()
	if cl, ok := cache.Get(key); ok {
		return cl, nil
	}
	cl, err := mc.MakeThread(ctx.Name())
	if err != nil {
		return nil, err
	}
	cache.Put(key, cl)
	return cl, nil
}
