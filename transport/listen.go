// File: transport/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream listener for runtimes that accept peers over a socket address
// instead of inheriting a descriptor. Each accepted connection is handed to
// the handler as a stream, typically forwarded straight into a runtime's
// Connect.

package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Listener accepts peer streams on a network address. Supported networks are
// the ones net.Listen accepts; unix and tcp are the ones that make sense for
// an IPC boundary.
type Listener struct {
	ln      net.Listener
	log     *zap.Logger
	handler func(io.ReadWriteCloser)

	closeOnce sync.Once
	done      chan struct{}
}

// ListenerOption customizes a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger attaches a structured logger.
func WithListenerLogger(log *zap.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// Listen binds addr on network and invokes handler once per accepted peer,
// each on its own goroutine. The accept loop starts immediately.
func Listen(network, addr string, handler func(io.ReadWriteCloser), opts ...ListenerOption) (*Listener, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{
		ln:      ln,
		log:     zap.NewNop(),
		handler: handler,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.Named("transport.listener").With(zap.String("addr", ln.Addr().String()))
	go l.acceptLoop()
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting. Streams already handed out stay open.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		<-l.done
	})
	return err
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		l.log.Debug("peer accepted", zap.String("remote", conn.RemoteAddr().String()))
		go l.handler(conn)
	}
}
