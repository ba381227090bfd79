// File: transport/pipe_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build unix

package transport

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// fdStream is one end of a socket pair as a ReadWriteCloser.
type fdStream struct {
	f *os.File
}

func (s *fdStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *fdStream) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *fdStream) Close() error                { return s.f.Close() }

// File exposes the underlying descriptor so it can be inherited across fork
// and exec when spawning a child process.
func (s *fdStream) File() *os.File { return s.f }

// SocketPair returns both ends of a connected Unix stream socket pair. The
// typical split is one end kept by the parent and the other passed to a
// spawned subprocess by descriptor inheritance.
func SocketPair() (io.ReadWriteCloser, io.ReadWriteCloser, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	a := &fdStream{f: os.NewFile(uintptr(fds[0]), "ipc-pair-0")}
	b := &fdStream{f: os.NewFile(uintptr(fds[1]), "ipc-pair-1")}
	return a, b, nil
}
