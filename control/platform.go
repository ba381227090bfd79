// File: control/platform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import "runtime"

// registerPlatformProbes installs process-level probes available everywhere.
func registerPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("runtime.cpus", func() any { return runtime.NumCPU() })
	dp.RegisterProbe("runtime.goroutines", func() any { return runtime.NumGoroutine() })
	dp.RegisterProbe("runtime.gomaxprocs", func() any { return runtime.GOMAXPROCS(0) })
}
