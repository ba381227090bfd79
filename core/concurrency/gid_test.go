// File: core/concurrency/gid_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextID_StableWithinGoroutine(t *testing.T) {
	a := ContextID()
	b := ContextID()
	require.NotZero(t, a)
	require.Equal(t, a, b)
}

func TestContextID_DiffersAcrossGoroutines(t *testing.T) {
	main := ContextID()
	other := make(chan uint64, 1)
	go func() { other <- ContextID() }()
	require.NotEqual(t, main, <-other)
}
