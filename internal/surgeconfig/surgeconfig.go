// Package surgeconfig resolves the on-disk directory layout shared by the
// CLI and the engine. It intentionally does not define an application
// settings schema — persisted user preferences are an external
// collaborator's concern, not the engine's.
package surgeconfig

import (
	"os"
	"path/filepath"
)

const dirName = ".surge"

// SurgeDir returns the per-user surge directory, typically
// ~/.surge.
func SurgeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName), nil
}

// EnsureDirs creates the surge directory and its logs subdirectory.
func EnsureDirs() error {
	dir, err := SurgeDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, "logs"), 0o755)
}

// LogsDir returns the directory debuglog should write to.
func LogsDir() (string, error) {
	dir, err := SurgeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// DefaultQueueStatePath returns the default location of the queue-level
// state file.
func DefaultQueueStatePath() (string, error) {
	dir, err := SurgeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

// LockPath returns the path of the advisory lock file guarding the queue
// state file against concurrent-process torn writes.
func LockPath() (string, error) {
	dir, err := SurgeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "surge.lock"), nil
}
