// File: transport/mem.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"io"
	"net"
)

// MemPair returns two connected in-process streams. Both ends behave like a
// blocking socket: writes on one side are reads on the other, and closing
// either end fails the peer's pending reads.
func MemPair() (io.ReadWriteCloser, io.ReadWriteCloser) {
	a, b := net.Pipe()
	return a, b
}

var _ io.ReadWriteCloser = (net.Conn)(nil)
