// File: ipc/events_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_NotifyReachesSubscribers(t *testing.T) {
	r := NewRegistry()
	hits := 0
	r.Subscribe(func() { hits++ })
	r.Subscribe(func() { hits++ })
	require.Equal(t, 2, r.Len())

	r.notify()
	require.Equal(t, 2, hits)
}

func TestRegistry_ClosedSubscriptionStopsFiring(t *testing.T) {
	r := NewRegistry()
	hits := 0
	sub := r.Subscribe(func() { hits++ })
	r.notify()
	sub.Close()
	sub.Close() // double close is a no-op
	r.notify()
	require.Equal(t, 1, hits)
	require.Equal(t, 0, r.Len())
}

func TestRegistry_SubscriberMayCloseItself(t *testing.T) {
	r := NewRegistry()
	var sub interface{ Close() }
	fired := 0
	sub = r.Subscribe(func() {
		fired++
		sub.Close()
	})
	r.notify()
	r.notify()
	require.Equal(t, 1, fired)
}
