// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe configuration store with atomic snapshot reads and hot-reload
// propagation to subscribed components.

package control

import (
	"container/list"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/momentics/hioload-ipc/api"
)

// Well-known configuration keys of the IPC runtime.
const (
	KeyLogLevel        = "log.level"         // string: debug, info, warn, error
	KeyExeName         = "exe.name"          // string: process display name
	KeyThreadCacheSize = "thread.cache_size" // int: per-context proxy cache entries
	KeyPinCPU          = "thread.pin_cpu"    // int: CPU id for served contexts, -1 off
)

// ConfigStore is a dynamic key/value map with snapshot reads and reload
// subscriptions.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners *list.List
}

// NewConfigStore initializes a store seeded with defaults suitable for the
// runtime.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: map[string]any{
			KeyLogLevel:        "info",
			KeyThreadCacheSize: 64,
			KeyPinCPU:          -1,
		},
		listeners: list.New(),
	}
}

// Snapshot returns a copy of all config values.
func (cs *ConfigStore) Snapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// GetString reads a string value, falling back to def when the key is absent
// or of another type.
func (cs *ConfigStore) GetString(key, def string) string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if s, ok := cs.config[key].(string); ok {
		return s
	}
	return def
}

// GetInt reads an integer value, falling back to def when the key is absent
// or of another type.
func (cs *ConfigStore) GetInt(key string, def int) int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if n, ok := cs.config[key].(int); ok {
		return n
	}
	return def
}

// Set merges new values and notifies reload subscribers synchronously, after
// the lock is released, in subscription order.
func (cs *ConfigStore) Set(newCfg map[string]any) {
	cs.mu.Lock()
	for k, v := range newCfg {
		cs.config[k] = v
	}
	hooks := make([]func(), 0, cs.listeners.Len())
	for el := cs.listeners.Front(); el != nil; el = el.Next() {
		hooks = append(hooks, el.Value.(func()))
	}
	cs.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// OnReload subscribes fn to config changes. Closing the subscription removes
// the hook.
func (cs *ConfigStore) OnReload(fn func()) api.Subscription {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	el := cs.listeners.PushBack(fn)
	return &reloadSub{cs: cs, el: el}
}

type reloadSub struct {
	cs   *ConfigStore
	el   *list.Element
	once sync.Once
}

func (s *reloadSub) Close() {
	s.once.Do(func() {
		s.cs.mu.Lock()
		defer s.cs.mu.Unlock()
		s.cs.listeners.Remove(s.el)
	})
}

// BindLogLevel keeps lvl in sync with the store's log.level key, applying the
// current value immediately. Unparseable values are ignored and logged once
// the runtime has a logger to report through.
func BindLogLevel(cs *ConfigStore, lvl zap.AtomicLevel) api.Subscription {
	apply := func() {
		var l zapcore.Level
		if err := l.Set(cs.GetString(KeyLogLevel, "info")); err == nil {
			lvl.SetLevel(l)
		}
	}
	apply()
	return cs.OnReload(apply)
}
