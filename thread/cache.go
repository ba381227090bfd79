// File: thread/cache.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded cache of thread proxies keyed by logical origin. Eviction closes
// the proxy, which routes the remote thread's destruction through the async
// cleanup path.

package thread

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache maps a logical origin key (typically a connection id) to the thread
// proxy created for it.
type Cache struct {
	c *lru.Cache[string, *Client]
}

// NewCache creates a cache evicting least-recently-used proxies beyond size.
func NewCache(size int) *Cache {
	c, err := lru.NewWithEvict(size, func(_ string, cl *Client) {
		cl.Close()
	})
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Cache{c: c}
}

// Get returns the cached proxy for key.
func (c *Cache) Get(key string) (*Client, bool) {
	return c.c.Get(key)
}

// Put caches cl under key. A displaced or evicted proxy is closed.
func (c *Cache) Put(key string, cl *Client) {
	if prev, ok := c.c.Peek(key); ok && prev != cl {
		c.c.Remove(key)
	}
	c.c.Add(key, cl)
}

// Len returns the number of cached proxies.
func (c *Cache) Len() int { return c.c.Len() }

// Purge closes and removes every cached proxy.
func (c *Cache) Purge() { c.c.Purge() }
