//go:build windows

package driver

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindRuntime locates a driver helper binary. Bundled binaries under
// bin/*/windows/x64 next to the executable or the working directory take
// precedence over PATH.
func FindRuntime(runtime string) (string, error) {
	var lookup []string

	exePath, err := os.Executable()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get executable path: %w", err))
	}

	lookup = append(lookup, filepath.Dir(exePath))

	wd, err := os.Getwd()
	if err != nil {
		return "", NewRuntimeError(runtime, fmt.Errorf("failed to get current working directory: %w", err))
	}

	lookup = append(lookup, wd)

	for _, exeDir := range lookup {
		matches, err := filepath.Glob(filepath.Join(exeDir, "bin", "*", "windows", "x64", fmt.Sprintf("%s.exe", runtime)))
		if err != nil || len(matches) == 0 {
			continue // continue to next directory
		}

		binPath := matches[0]
		if _, err = os.Stat(binPath); err != nil {
			continue // continue to next directory
		}

		return binPath, nil
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", NewRuntimeError(runtime, errors.Join(fmt.Errorf("no bundled binary"), err))
	}
	return binPath, nil
}
