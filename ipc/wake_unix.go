//go:build unix
// +build unix

// File: ipc/wake_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wake channel backed by a Unix socketpair, matching the runtime's wire-level
// siblings: one byte written to the post end wakes the loop blocked reading
// the wait end.

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// newWakePipe creates the socketpair wake channel for one event loop.
func newWakePipe() (*wakePipe, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("ipc: wake socketpair: %w", err)
	}
	return &wakePipe{
		wait: os.NewFile(uintptr(fds[0]), "ipc-wake-wait"),
		post: os.NewFile(uintptr(fds[1]), "ipc-wake-post"),
	}, nil
}
