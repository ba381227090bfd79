// File: ipc/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package ipc implements the proxy/connection runtime: the event loop that
// owns a connection group's reactor thread, the per-connection two-phase
// cleanup protocol, the capability table, and the generic client/server proxy
// bases every generated interface proxy builds on.
//
// Concurrency model: exactly one thread drives EventLoop.Serve per loop
// instance. All state that the transport substrate touches is mutated only on
// that thread; other threads marshal work onto it with EventLoop.Post, which
// admits at most one in-flight cross-thread closure at a time. Cleanup lists
// of every Connection share the loop's mutex, keeping one lock domain per
// event loop.
package ipc
