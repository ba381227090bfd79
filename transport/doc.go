// File: transport/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package transport carries capability calls between two processes (or two
// connection groups inside one process) over a byte stream.
//
// An Endpoint binds one stream to one ipc.Connection: outbound invocations
// become call frames correlated by id, inbound call frames dispatch against
// the connection's export table, and handles received from the peer resolve
// to remote capability references addressing the peer's table. Streams come
// from SocketPair (a Unix domain socket pair, for parent/child process
// setups), MemPair (an in-process pair for tests and single-binary mode), or
// any net.Conn.
package transport
