// File: ipc/captable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CapTable is the per-connection table of exported capabilities: a slot
// array with a free list, handing out dense handles that the peer (or the
// in-process client side) uses as dispatch targets. Once the table is closed
// every lookup fails, which is what makes racing calls fail fast during
// connection teardown.

package ipc

import (
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

type capEntry struct {
	d     api.Dispatcher
	valid bool
}

// CapTable maps capability handles to their server-side dispatch targets.
type CapTable struct {
	mu       sync.RWMutex
	entries  []capEntry
	freeList []api.Handle
	closed   bool
}

// NewCapTable creates an empty table. The first Add receives handle 0, the
// bootstrap capability of a connection.
func NewCapTable() *CapTable {
	return &CapTable{
		entries:  make([]capEntry, 0, 16),
		freeList: make([]api.Handle, 0, 8),
	}
}

// Add exports a dispatcher and returns its handle, reusing freed slots.
func (t *CapTable) Add(d api.Dispatcher) (api.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, api.ErrDisconnected
	}
	e := capEntry{d: d, valid: true}
	if n := len(t.freeList); n > 0 {
		h := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h] = e
		return h, nil
	}
	t.entries = append(t.entries, e)
	return api.Handle(len(t.entries) - 1), nil
}

// Get resolves a handle to its dispatcher. ok is false for freed handles,
// unknown handles, and any handle after Close.
func (t *CapTable) Get(h api.Handle) (api.Dispatcher, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed || int(h) >= len(t.entries) || !t.entries[h].valid {
		return nil, false
	}
	return t.entries[h].d, true
}

// Drop frees a handle, making its slot reusable. Unknown handles are ignored.
func (t *CapTable) Drop(h api.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || int(h) >= len(t.entries) || !t.entries[h].valid {
		return
	}
	t.entries[h] = capEntry{}
	t.freeList = append(t.freeList, h)
}

// Len returns the number of live exports.
func (t *CapTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.valid {
			n++
		}
	}
	return n
}

// Close invalidates the whole table. Subsequent lookups fail; entries are
// released so the dispatch targets can be collected.
func (t *CapTable) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.entries = nil
	t.freeList = nil
}

// localCapability is the in-process capability reference: handle plus table.
// Valid until the handle is dropped or the table closes.
type localCapability struct {
	table    *CapTable
	handle   api.Handle
	released sync.Once
}

// CapabilityFor returns an invokable reference to an exported handle.
func CapabilityFor(table *CapTable, h api.Handle) api.Capability {
	return &localCapability{table: table, handle: h}
}

// Invoke dispatches the call to the handle's target. Runs on the loop
// thread; the returned future resolves when the dispatch target completes.
func (c *localCapability) Invoke(call *api.Call) api.Future {
	d, ok := c.table.Get(c.handle)
	if !ok {
		return FailedFuture(api.ErrCapabilityRevoked)
	}
	p := NewPromise()
	d.Dispatch(call, p.Fulfill)
	return p
}

// Release drops the underlying export exactly once.
func (c *localCapability) Release() {
	c.released.Do(func() { c.table.Drop(c.handle) })
}

var _ api.Capability = (*localCapability)(nil)
