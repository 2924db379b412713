package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rivermoor/surge/internal/surgeerr"
)

const queueStateVersion = "1.0"

// TaskRecord mirrors one Task (internal/queue) in its JSON wire form. It
// intentionally knows nothing about internal/queue's Go types, to keep
// that package the only place task semantics live;
// internal/queue converts to/from this shape.
type TaskRecord struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Dest       string            `json:"dest"`
	Status     string            `json:"status"`
	TotalSize  int64             `json:"total_size"`
	Downloaded int64             `json:"downloaded"`
	CreatedAt  int64             `json:"created_at"`
	Error      string            `json:"error,omitempty"`
	Priority   string            `json:"priority"`
	Speed      float64           `json:"speed"`
	ETASeconds *int64            `json:"eta_seconds,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Digest     string            `json:"digest,omitempty"`
}

// QueueState is the single top-level persisted document listing every
// task known to the scheduler.
type QueueState struct {
	Version   string       `json:"version"`
	Tasks     []TaskRecord `json:"tasks"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at"`
}

// QueueStore owns the single queue-level state file at path, guarded by
// an advisory file lock so multiple processes sharing the same path don't
// interleave writes.
type QueueStore struct {
	path     string
	lockPath string
}

// NewQueueStore returns a store for the queue-level state file at path.
func NewQueueStore(path string) *QueueStore {
	return &QueueStore{path: path, lockPath: path + ".lock"}
}

// Save performs a temp-file-then-rename write of the full task list, a
// robustness improvement over a plain rewrite (queue-state is rewritten
// far less often than file-level state, so the extra syscalls are cheap
// here).
func (s *QueueStore) Save(tasks []TaskRecord, createdAt int64) error {
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return surgeerr.New(surgeerr.IO, "locking queue state", err)
	}
	defer fl.Unlock()

	qs := QueueState{
		Version:   queueStateVersion,
		Tasks:     tasks,
		CreatedAt: createdAt,
		UpdatedAt: time.Now().Unix(),
	}
	data, err := json.MarshalIndent(&qs, "", "  ")
	if err != nil {
		return surgeerr.New(surgeerr.JSON, "marshaling queue state", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return surgeerr.New(surgeerr.IO, "creating queue state dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.json.tmp")
	if err != nil {
		return surgeerr.New(surgeerr.IO, "creating temp queue state file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return surgeerr.New(surgeerr.IO, "writing temp queue state file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return surgeerr.New(surgeerr.IO, "closing temp queue state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return surgeerr.New(surgeerr.IO, "renaming queue state file", err)
	}
	return nil
}

// Load reads the queue-level state file. A missing or malformed file is
// treated as "no prior state" (empty, nil error).
func (s *QueueStore) Load() (*QueueState, error) {
	fl := flock.New(s.lockPath)
	if err := fl.RLock(); err != nil {
		return nil, surgeerr.New(surgeerr.IO, "locking queue state", err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, surgeerr.New(surgeerr.IO, "reading queue state", err)
	}

	var qs QueueState
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, nil
	}
	return &qs, nil
}
