// File: ipc/captable_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ipc/api"
)

func TestCapTable_HandlesAreDenseAndReused(t *testing.T) {
	tbl := NewCapTable()
	d := dispatcherFunc(func(*api.Call, func([]byte, error)) {})

	h0, err := tbl.Add(d)
	require.NoError(t, err)
	h1, err := tbl.Add(d)
	require.NoError(t, err)
	require.Equal(t, api.Handle(0), h0)
	require.Equal(t, api.Handle(1), h1)

	tbl.Drop(h0)
	_, ok := tbl.Get(h0)
	require.False(t, ok)
	require.Equal(t, 1, tbl.Len())

	// Freed slot is handed out again before the table grows.
	h2, err := tbl.Add(d)
	require.NoError(t, err)
	require.Equal(t, h0, h2)
}

func TestCapTable_DropUnknownHandleIgnored(t *testing.T) {
	tbl := NewCapTable()
	tbl.Drop(99)
	require.Equal(t, 0, tbl.Len())
}

func TestCapTable_CloseRevokesEverything(t *testing.T) {
	tbl := NewCapTable()
	h, err := tbl.Add(dispatcherFunc(func(*api.Call, func([]byte, error)) {}))
	require.NoError(t, err)

	capability := CapabilityFor(tbl, h)
	tbl.Close()

	_, ok := tbl.Get(h)
	require.False(t, ok)
	_, err = capability.Invoke(&api.Call{Method: "x"}).Await()
	require.ErrorIs(t, err, api.ErrCapabilityRevoked)
	_, err = tbl.Add(dispatcherFunc(nil))
	require.ErrorIs(t, err, api.ErrDisconnected)
}

func TestCapTable_ReleasedCapabilityDropsExport(t *testing.T) {
	tbl := NewCapTable()
	h, err := tbl.Add(dispatcherFunc(func(*api.Call, func([]byte, error)) {}))
	require.NoError(t, err)

	capability := CapabilityFor(tbl, h)
	capability.Release()
	capability.Release() // second release is a no-op
	require.Equal(t, 0, tbl.Len())
}

func TestCapTable_InvokeCompletesFuture(t *testing.T) {
	tbl := NewCapTable()
	h, err := tbl.Add(dispatcherFunc(func(call *api.Call, complete func([]byte, error)) {
		complete([]byte("pong:"+call.Method), nil)
	}))
	require.NoError(t, err)

	res, err := CapabilityFor(tbl, h).Invoke(&api.Call{Method: "ping"}).Await()
	require.NoError(t, err)
	require.Equal(t, "pong:ping", string(res))
}
