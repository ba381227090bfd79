// Package control
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime configuration, metrics, and debug introspection for the IPC
// runtime. ConfigStore holds live-reloadable settings (log level, thread
// cache sizing, CPU pinning); MetricsRegistry aggregates call and loop
// counters; DebugProbes exposes on-demand state snapshots of the event loop
// and execution-context registry.
package control
