package main

import (
	"os"
	"os/exec"
	"path/filepath"
)

// childBinaryName is the executable name pryx-host looks for, both next
// to itself (packaged app) and on PATH (dev mode).
const childBinaryName = "pryx-core"

// findChildBinary locates the child worker executable. Search order:
//  1. Next to this executable (packaged app / dev build output).
//  2. On PATH.
func findChildBinary() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), childBinaryName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}

	if path, err := exec.LookPath(childBinaryName); err == nil {
		return path
	}

	return ""
}
