// File: api/events.go
// Package api defines the subscription contract for runtime event hooks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Subscription is an owned handle to one registered event hook. Closing it
// removes the hook; closing twice is a no-op.
type Subscription interface {
	Close()
}

// DisconnectNotifier exposes connection teardown to application code. The
// handler runs on the event loop thread after client-side capability state
// has been severed, so it must be fast and non-blocking.
type DisconnectNotifier interface {
	OnDisconnect(fn func()) Subscription
}
