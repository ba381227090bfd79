// File: transport/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint binds one byte stream to one connection. Outbound invocations are
// encoded as call frames and correlated with their results by id; inbound
// call frames dispatch against the connection's export table on the loop
// thread. A dedicated writer goroutine owns the stream's write side so
// neither the reader nor the loop thread ever blocks inside a stream write.

package transport

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ipc/api"
	"github.com/momentics/hioload-ipc/control"
	"github.com/momentics/hioload-ipc/core/protocol"
	"github.com/momentics/hioload-ipc/ipc"
)

// outboxSize bounds frames queued for the writer goroutine.
const outboxSize = 64

// Endpoint drives the remote side of a connection over a stream.
type Endpoint struct {
	conn    *ipc.Connection
	stream  io.ReadWriteCloser
	log     *zap.Logger
	metrics *control.MetricsRegistry

	out  chan *protocol.Frame
	done chan struct{}

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*ipc.Promise
	closed  bool

	readerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// EndpointOption customizes a new Endpoint.
type EndpointOption func(*Endpoint)

// WithEndpointLogger attaches a structured logger to the endpoint.
func WithEndpointLogger(log *zap.Logger) EndpointOption {
	return func(e *Endpoint) { e.log = log }
}

// WithEndpointMetrics counts outbound calls and their failures in mr.
func WithEndpointMetrics(mr *control.MetricsRegistry) EndpointOption {
	return func(e *Endpoint) { e.metrics = mr }
}

// NewEndpoint binds stream to conn and installs the remote handle resolver:
// handles received from the peer become invokable references addressing the
// peer's export table. Call Start before issuing or expecting calls.
func NewEndpoint(conn *ipc.Connection, stream io.ReadWriteCloser, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		conn:       conn,
		stream:     stream,
		log:        zap.NewNop(),
		out:        make(chan *protocol.Frame, outboxSize),
		done:       make(chan struct{}),
		pending:    make(map[uint64]*ipc.Promise),
		readerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("transport.endpoint").With(zap.String("conn_id", conn.ID()))
	conn.SetResolver(func(h api.Handle) api.Capability {
		return &remoteCapability{ep: e, handle: h}
	})
	conn.OnDisconnect(func() { e.Close() })
	return e
}

// Bootstrap returns the peer's bootstrap capability (handle 0).
func (e *Endpoint) Bootstrap() api.Capability {
	return &remoteCapability{ep: e}
}

// Conn returns the connection this endpoint serves.
func (e *Endpoint) Conn() *ipc.Connection { return e.conn }

// Done is closed once the reader goroutine has exited, which only happens
// after the stream is broken or closed.
func (e *Endpoint) Done() <-chan struct{} { return e.readerDone }

// Start launches the reader and writer goroutines. The endpoint runs until
// the stream breaks or Close is called; either way the connection is torn
// down and every in-flight call fails with a disconnect error.
func (e *Endpoint) Start() {
	go e.writeLoop()
	go e.readLoop()
}

// Close shuts the stream down and fails all in-flight calls. Idempotent;
// every call returns the close error of the first.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.closeErr = e.stream.Close()
		e.failPending(api.ErrDisconnected)
	})
	return e.closeErr
}

// register assigns a correlation id to a pending call.
func (e *Endpoint) register(p *ipc.Promise) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, false
	}
	e.nextID++
	e.pending[e.nextID] = p
	return e.nextID, true
}

// take removes and returns the pending call for id, if any.
func (e *Endpoint) take(id uint64) (*ipc.Promise, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	return p, ok
}

// failPending resolves every in-flight call with err and refuses new ones.
func (e *Endpoint) failPending(err error) {
	e.mu.Lock()
	e.closed = true
	stranded := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, p := range stranded {
		p.Fulfill(nil, err)
	}
	if n := len(stranded); n > 0 {
		e.count(control.MetricCallsFailed, uint64(n))
		e.log.Debug("stranded calls failed", zap.Int("calls", n), zap.Error(err))
	}
}

func (e *Endpoint) count(name string, delta uint64) {
	if e.metrics != nil {
		e.metrics.Inc(name, delta)
	}
}

// send queues one frame for the writer goroutine.
func (e *Endpoint) send(f *protocol.Frame) error {
	select {
	case e.out <- f:
		return nil
	case <-e.done:
		return api.ErrDisconnected
	}
}

// trySend queues one frame without ever blocking. Used for frames that are
// advisory only and may be dropped when the outbox is full or closing.
func (e *Endpoint) trySend(f *protocol.Frame) bool {
	select {
	case e.out <- f:
		return true
	default:
		return false
	}
}

func (e *Endpoint) writeLoop() {
	for {
		select {
		case f := <-e.out:
			if err := protocol.EncodeFrame(e.stream, f); err != nil {
				e.log.Debug("stream write failed", zap.Error(err))
				e.Close()
				return
			}
		case <-e.done:
			return
		}
	}
}

func (e *Endpoint) readLoop() {
	defer close(e.readerDone)
	for {
		f, err := protocol.ReadFrame(e.stream)
		if err != nil {
			if err != io.EOF {
				e.log.Debug("stream read failed", zap.Error(err))
			}
			break
		}
		switch f.Type {
		case protocol.MsgCall:
			e.handleCall(f)
		case protocol.MsgResult:
			e.handleResult(f)
		case protocol.MsgRelease:
			e.conn.Table().Drop(api.Handle(f.Handle))
		default:
			e.log.Warn("unknown frame type", zap.Uint8("type", uint8(f.Type)))
		}
	}
	e.Close()
	e.conn.Close()
}

// handleCall dispatches one inbound invocation on the loop thread. The
// reader blocks until the loop picks the closure up, which serializes
// inbound calls in stream order; the dispatch itself never blocks the loop.
func (e *Endpoint) handleCall(f *protocol.Frame) {
	id := f.ID
	handle := api.Handle(f.Handle)
	call := &api.Call{Method: f.Method, Thread: f.Thread, Args: f.Payload}
	err := e.conn.Loop().Post(func() {
		d, ok := e.conn.Table().Get(handle)
		if !ok {
			e.sendResult(id, nil, api.ErrCapabilityRevoked)
			return
		}
		d.Dispatch(call, func(data []byte, err error) {
			e.sendResult(id, data, err)
		})
	})
	if err != nil {
		e.sendResult(id, nil, api.ErrDisconnected)
	}
}

func (e *Endpoint) handleResult(f *protocol.Frame) {
	p, ok := e.take(f.ID)
	if !ok {
		e.log.Warn("result for unknown call", zap.Uint64("id", f.ID))
		return
	}
	var err error
	if f.Err != "" {
		err = api.NewError(api.ErrCodeInternal, f.Err)
		e.count(control.MetricCallsFailed, 1)
	}
	p.Fulfill(f.Payload, err)
}

func (e *Endpoint) sendResult(id uint64, data []byte, err error) {
	f := &protocol.Frame{Type: protocol.MsgResult, ID: id, Payload: data}
	if err != nil {
		msg := err.Error()
		// Keep the frame encodable even for errors carrying huge context.
		if len(msg) > protocol.MaxSectionLen {
			msg = msg[:protocol.MaxSectionLen]
		}
		f.Err = msg
		f.Payload = nil
	}
	if serr := e.send(f); serr != nil {
		e.log.Debug("result dropped, endpoint closed", zap.Uint64("id", id))
	}
}

// remoteCapability addresses one handle in the peer's export table.
type remoteCapability struct {
	ep       *Endpoint
	handle   api.Handle
	released sync.Once
}

// Invoke encodes the call as a frame and returns a promise resolved when the
// matching result frame arrives (or the endpoint breaks).
func (r *remoteCapability) Invoke(call *api.Call) api.Future {
	p := ipc.NewPromise()
	id, ok := r.ep.register(p)
	if !ok {
		return ipc.FailedFuture(api.ErrDisconnected)
	}
	f := &protocol.Frame{
		Type:    protocol.MsgCall,
		ID:      id,
		Handle:  uint32(r.handle),
		Method:  call.Method,
		Thread:  call.Thread,
		Payload: call.Args,
	}
	if err := r.ep.send(f); err != nil {
		if stranded, taken := r.ep.take(id); taken {
			stranded.Fulfill(nil, err)
		}
		r.ep.count(control.MetricCallsFailed, 1)
		return ipc.FailedFuture(err)
	}
	r.ep.count(control.MetricCallsIssued, 1)
	return p
}

// Release tells the peer to drop the export. Exactly once and strictly
// non-blocking: release frames are advisory, so when the outbox is full or
// the endpoint is closing the frame is dropped rather than stalling the
// caller. Connection teardown severs proxies on the loop thread, which must
// never wait on a stalled writer; a dropped release is reclaimed when the
// peer tears its table down on disconnect.
func (r *remoteCapability) Release() {
	r.released.Do(func() {
		if !r.ep.trySend(&protocol.Frame{Type: protocol.MsgRelease, Handle: uint32(r.handle)}) {
			r.ep.log.Debug("release dropped", zap.Uint32("handle", uint32(r.handle)))
		}
	})
}

var _ api.Capability = (*remoteCapability)(nil)
