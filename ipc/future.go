// File: ipc/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

// Promise is the runtime's one-shot future. Dispatch completion fulfills it;
// the original caller blocks in Await until then. Transport endpoints fulfill
// promises from their reader goroutine when result frames arrive.
type Promise struct {
	once sync.Once
	done chan struct{}
	data []byte
	err  error
}

// NewPromise creates an unresolved promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Fulfill resolves the promise. Later calls are ignored, so a completion
// racing a broken-connection failure settles on whichever arrived first.
func (p *Promise) Fulfill(data []byte, err error) {
	p.once.Do(func() {
		p.data = data
		p.err = err
		close(p.done)
	})
}

// Await blocks until the promise resolves.
func (p *Promise) Await() ([]byte, error) {
	<-p.done
	return p.data, p.err
}

var _ api.Future = (*Promise)(nil)

// FailedFuture returns an already-resolved failing future.
func FailedFuture(err error) api.Future {
	p := NewPromise()
	p.Fulfill(nil, err)
	return p
}
