//go:build !windows

package driver

import (
	"os/exec"
)

// FindRuntime locates a driver helper binary, e.g. `rtl_tcp`, in PATH.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", NewRuntimeError(runtime, err)
	}

	return binPath, nil
}
