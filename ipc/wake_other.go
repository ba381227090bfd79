//go:build !unix
// +build !unix

// File: ipc/wake_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wake channel fallback for platforms without Unix socketpairs.

package ipc

import (
	"fmt"
	"os"
)

// newWakePipe creates a pipe-backed wake channel for one event loop.
func newWakePipe() (*wakePipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("ipc: wake pipe: %w", err)
	}
	return &wakePipe{wait: r, post: w}, nil
}
