// File: core/concurrency/gid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Execution-context identity used by the event loop to detect reentrant
// calls from its own thread. Parses the goroutine header emitted by
// runtime.Stack; the id is stable for the lifetime of the goroutine.

package concurrency

import (
	"bytes"
	"runtime"
	"strconv"
)

// ContextID returns the id of the calling goroutine.
func ContextID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Header shape: "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
