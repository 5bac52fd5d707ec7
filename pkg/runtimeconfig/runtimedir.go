package runtimeconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvRuntimeDir names the environment variable that overrides the
// default runtime directory.
const EnvRuntimeDir = "PI_RUNTIME_DIR"

const defaultRuntimeDirSuffix = ".pi/runtime"

// RuntimeDir resolves the root directory housing instances/,
// queue-states/, locks/, and coordinator.json: PI_RUNTIME_DIR if set
// (expanding a leading ~), otherwise ~/.pi/runtime.
func RuntimeDir() (string, error) {
	if v := os.Getenv(EnvRuntimeDir); v != "" {
		return expandHome(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pi", "runtime"), nil
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
