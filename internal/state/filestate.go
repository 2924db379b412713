// Package state implements the two persistent JSON formats: the
// per-task file-level state sibling (<dest>.json) and the single
// queue-level state file.
package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rivermoor/surge/internal/surgeerr"
)

// ChunkState mirrors one chunk descriptor on disk.
type ChunkState struct {
	Index      int   `json:"index"`
	Start      int64 `json:"start"`
	End        int64 `json:"end"`
	Current    int64 `json:"current"`
	IsFinished bool  `json:"is_finished"`
}

// FileState is the sibling <dest>.json document for one in-flight chunked
// (or streaming) task.
type FileState struct {
	URL         string       `json:"url"`
	TotalSize   *int64       `json:"total_size,omitempty"`
	Chunks      []ChunkState `json:"chunks"`
	IsStreaming bool         `json:"is_streaming"`
}

// FilePath returns the sibling state path for a given destination file.
func FilePath(dest string) string {
	return dest + ".json"
}

// SaveFileState truncates and rewrites the sibling state file for dest.
// Rewritten once per chunk delta, so this intentionally does not use a
// temp-file-then-rename (unlike the queue-level store): the churn rate
// makes the extra syscalls costly, and a torn write here just means the
// next resume re-partitions, which is cheap.
func SaveFileState(dest string, fs *FileState) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return surgeerr.New(surgeerr.JSON, "marshaling file state", err)
	}
	if err := os.WriteFile(FilePath(dest), data, 0o644); err != nil {
		return surgeerr.New(surgeerr.IO, "writing file state", err)
	}
	return nil
}

// LoadFileState reads and parses the sibling state file for dest. It
// returns (nil, nil) if the file does not exist or is malformed — both
// are treated as "start over".
func LoadFileState(dest string) (*FileState, error) {
	data, err := os.ReadFile(FilePath(dest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, surgeerr.New(surgeerr.IO, "reading file state", err)
	}

	var fs FileState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, nil
	}
	return &fs, nil
}

// DeleteFileState removes the sibling state file, ignoring a not-exist
// error.
func DeleteFileState(dest string) error {
	if err := os.Remove(FilePath(dest)); err != nil && !os.IsNotExist(err) {
		return surgeerr.New(surgeerr.IO, fmt.Sprintf("deleting file state for %s", dest), err)
	}
	return nil
}
