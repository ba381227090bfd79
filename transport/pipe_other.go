// File: transport/pipe_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !unix

package transport

import "io"

// SocketPair has no kernel socket pair on this platform; an in-process pair
// is the closest equivalent.
func SocketPair() (io.ReadWriteCloser, io.ReadWriteCloser, error) {
	a, b := MemPair()
	return a, b, nil
}
