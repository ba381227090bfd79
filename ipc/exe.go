// File: ipc/exe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ipc

import (
	"os"
	"path/filepath"
)

// defaultExeName derives the process display name used in logs and in
// context thread names ("<exe> (from <name>)").
func defaultExeName() string {
	path, err := os.Executable()
	if err != nil || path == "" {
		return "hioload-ipc"
	}
	return filepath.Base(path)
}
