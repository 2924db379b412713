package cmd

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/rivermoor/surge/internal/surgeconfig"
)

// instanceLock guards the queue-state file against two CLI invocations
// running the engine against it at once. Every subcommand that mutates or
// drains the queue acquires it for the lifetime of the process; ls and
// other read-only commands do not need it.
var instanceLock *flock.Flock

// acquireInstanceLock takes the single-instance lock, returning an error
// if another surge process already holds it.
func acquireInstanceLock() (func(), error) {
	if err := surgeconfig.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensuring surge dir: %w", err)
	}
	path, err := surgeconfig.LockPath()
	if err != nil {
		return nil, err
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring instance lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another surge process is already using this queue (lock held at %s)", path)
	}
	instanceLock = fl
	return func() { _ = fl.Unlock() }, nil
}
