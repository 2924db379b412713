// Package debuglog is a minimal timestamped-file logger used for verbose
// diagnostics. It is silent until Configure is called.
package debuglog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	file    *os.File
	enabled bool
)

// Configure points the logger at dir, creating it if necessary, and opens
// a new timestamped log file. Safe to call more than once; the previous
// file is closed.
func Configure(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("debuglog: creating log dir: %w", err)
	}

	name := fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("debuglog: opening log file: %w", err)
	}

	if file != nil {
		_ = file.Close()
	}
	file = f
	enabled = true
	return nil
}

// Debug writes a timestamped, formatted line to the log file. It is a
// no-op until Configure has succeeded.
func Debug(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || file == nil {
		return
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.RFC3339Nano), fmt.Sprintf(format, args...))
	_, _ = file.WriteString(line)
}

// CleanupLogs removes all but the keep most recent debug-*.log files in
// dir. keep <= 0 removes every log file.
func CleanupLogs(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("debuglog: reading log dir: %w", err)
	}

	var logs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) >= 6 && name[:6] == "debug-" {
			logs = append(logs, name)
		}
	}
	sort.Strings(logs)

	if keep < 0 {
		keep = 0
	}
	if len(logs) <= keep {
		return nil
	}
	toRemove := logs[:len(logs)-keep]
	for _, name := range toRemove {
		_ = os.Remove(filepath.Join(dir, name))
	}
	return nil
}
