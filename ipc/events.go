// File: ipc/events.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Subscription registry: a tagged closure list whose entries are removed by
// closing the returned handle. Same mechanism as the sync-cleanup list,
// generalized for application callbacks.

package ipc

import (
	"container/list"
	"sync"

	"github.com/momentics/hioload-ipc/api"
)

// Registry is a thread-safe list of event hooks with owned unsubscribe
// handles. Hooks fire in reverse subscription order.
type Registry struct {
	mu   sync.Mutex
	subs *list.List
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: list.New()}
}

// Subscribe registers fn and returns its owned handle. Closing the handle
// (or letting the registry fire and discard) removes the entry.
func (r *Registry) Subscribe(fn func()) api.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &subscription{r: r, el: r.subs.PushFront(fn)}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs.Len()
}

// notify invokes all current hooks outside the registry lock.
func (r *Registry) notify() {
	r.mu.Lock()
	fns := make([]func(), 0, r.subs.Len())
	for el := r.subs.Front(); el != nil; el = el.Next() {
		fns = append(fns, el.Value.(func()))
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type subscription struct {
	r    *Registry
	el   *list.Element
	once sync.Once
}

// Close removes the subscription. Idempotent.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.r.mu.Lock()
		defer s.r.mu.Unlock()
		s.r.subs.Remove(s.el)
	})
}
