// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime metrics collector. Counters are cheap atomic increments on the
// call path; gauges are sampled lazily at snapshot time so idle registries
// cost nothing.

package control

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names maintained by the runtime.
const (
	MetricCallsIssued    = "calls.issued"
	MetricCallsFailed    = "calls.failed"
	MetricThreadsSpawned = "threads.spawned"
	MetricConnsOpened    = "conns.opened"
	MetricConnsClosed    = "conns.closed"
)

// MetricsRegistry holds counters and lazily-sampled gauges.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Uint64
	gauges   map[string]func() any
	updated  time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*atomic.Uint64),
		gauges:   make(map[string]func() any),
	}
}

// Inc adds delta to a named counter, creating it on first use.
func (mr *MetricsRegistry) Inc(name string, delta uint64) {
	mr.mu.RLock()
	c := mr.counters[name]
	mr.mu.RUnlock()
	if c == nil {
		mr.mu.Lock()
		if c = mr.counters[name]; c == nil {
			c = new(atomic.Uint64)
			mr.counters[name] = c
		}
		mr.updated = time.Now()
		mr.mu.Unlock()
	}
	c.Add(delta)
}

// Counter reads the current value of a named counter.
func (mr *MetricsRegistry) Counter(name string) uint64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if c := mr.counters[name]; c != nil {
		return c.Load()
	}
	return 0
}

// RegisterGauge binds a sampler invoked on every Snapshot.
func (mr *MetricsRegistry) RegisterGauge(name string, fn func() any) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.gauges[name] = fn
	mr.updated = time.Now()
}

// Snapshot returns current counter values plus freshly sampled gauges.
func (mr *MetricsRegistry) Snapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.counters)+len(mr.gauges))
	for k, c := range mr.counters {
		out[k] = c.Load()
	}
	for k, fn := range mr.gauges {
		out[k] = fn()
	}
	return out
}
