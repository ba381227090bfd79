// File: thread/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-thread state of the thread-affinity subsystem. A Context describes one
// OS thread participating in the runtime: its display name, the Waiter it
// blocks on when it can be remotely driven, and the caches that let repeated
// calls from the same logical origin reuse one remote thread instead of
// spawning a new one per call.

package thread

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-ipc/core/concurrency"
)

// DefaultCacheSize bounds the per-context thread-proxy caches. Evicted
// proxies are closed, which retires their remote thread.
const DefaultCacheSize = 64

// Context is the per-thread bookkeeping record.
type Context struct {
	name   string
	waiter *concurrency.Waiter

	requestThreads  *Cache
	callbackThreads *Cache
}

// NewContext creates a context for a thread that is never the target of
// remote calls (no Waiter). Application threads that issue proxy calls use
// this to participate in per-origin thread caching.
func NewContext(name string) *Context {
	return newContextSized(name, DefaultCacheSize)
}

func newContextSized(name string, cacheSize int) *Context {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Context{
		name:            name,
		requestThreads:  NewCache(cacheSize),
		callbackThreads: NewCache(cacheSize),
	}
}

// newServedContext creates a context for a thread that blocks on its own
// Waiter and can be remotely driven.
func newServedContext(name string, cacheSize int) *Context {
	c := newContextSized(name, cacheSize)
	c.waiter = concurrency.NewWaiter()
	return c
}

// Name returns the context's display name.
func (c *Context) Name() string { return c.name }

// Waiter returns the context's handoff primitive, or nil when this thread is
// not remotely addressable.
func (c *Context) Waiter() *concurrency.Waiter { return c.waiter }

// RequestThreads is the cache of threads serving this context's outgoing
// requests, keyed by connection identity.
func (c *Context) RequestThreads() *Cache { return c.requestThreads }

// CallbackThreads is the cache of threads serving callback re-entry into
// this context, keyed by connection identity.
func (c *Context) CallbackThreads() *Cache { return c.callbackThreads }

// purgeCaches clears both proxy caches, closing every cached proxy. Called
// during thread teardown before joining, so no cached proxy can require this
// thread to make progress while it is being joined.
func (c *Context) purgeCaches() {
	c.requestThreads.Purge()
	c.callbackThreads.Purge()
}

// Registry is the process-wide table of remotely drivable contexts, keyed by
// their unique display name. It implements api.Runner so server dispatch can
// land calls on the thread registered for the calling context.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

// register installs ctx, de-duplicating the display name with a numeric
// suffix when a thread of the same name already exists. Returns the final
// name the context is addressable under.
func (r *Registry) register(ctx *Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := ctx.name
	for n := 2; ; n++ {
		if _, taken := r.contexts[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s #%d", ctx.name, n)
	}
	ctx.name = name
	r.contexts[name] = ctx
	return name
}

// unregister removes the context registered under name.
func (r *Registry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, name)
}

// Lookup returns the context registered under name.
func (r *Registry) Lookup(name string) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[name]
	return c, ok
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// Run posts fn to the Waiter of the context registered under name. Reports
// false when the context is unknown, not remotely drivable, or retired.
// Run is called from the event loop thread and must not block there: when
// the waiter's slot is busy the handoff moves to a helper goroutine.
func (r *Registry) Run(name string, fn func()) bool {
	c, ok := r.Lookup(name)
	if !ok || c.waiter == nil {
		return false
	}
	if c.waiter.TryPost(fn) {
		return true
	}
	go func() {
		if err := c.waiter.Post(fn); err != nil {
			// Thread retired while the call was in flight. Run the
			// closure here so the pending caller still gets a result;
			// affinity is already moot for a retired context.
			fn()
		}
	}()
	return true
}
