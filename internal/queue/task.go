// Package queue implements the priority-admitting scheduler: Task
// lifecycle, persistence, and the add/pause/resume/cancel/remove/list/get/
// clear_completed/load_from_state operations.
package queue

import (
	"time"

	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/state"
)

// Status is a Task's position in the download lifecycle state machine.
type Status string

const (
	Pending     Status = "Pending"
	Downloading Status = "Downloading"
	Paused      Status = "Paused"
	Completed   Status = "Completed"
	Failed      Status = "Failed"
	Cancelled   Status = "Cancelled"
)

// IsTerminal reports whether s is one of the three terminal statuses.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Priority orders admission: High before Normal before Low.
type Priority string

const (
	Low    Priority = "Low"
	Normal Priority = "Normal"
	High   Priority = "High"
)

func (p Priority) rank() int {
	switch p {
	case High:
		return 2
	case Normal:
		return 1
	case Low:
		return 0
	default:
		return 1
	}
}

// Task is the caller-visible record of one download.
type Task struct {
	ID         string
	URL        string
	Dest       string
	Status     Status
	TotalSize  int64
	Downloaded int64
	CreatedAt  time.Time
	Error      string
	Priority   Priority
	Speed      float64
	ETA        *time.Duration
	Headers    map[string]string
	Digest     *digest.Expected
}

// snapshot returns a value copy safe to hand to callers outside the lock.
func (t *Task) snapshot() Task {
	cp := *t
	if t.Headers != nil {
		cp.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			cp.Headers[k] = v
		}
	}
	if t.ETA != nil {
		eta := *t.ETA
		cp.ETA = &eta
	}
	if t.Digest != nil {
		d := *t.Digest
		cp.Digest = &d
	}
	return cp
}

func (t *Task) toRecord() state.TaskRecord {
	rec := state.TaskRecord{
		ID:         t.ID,
		URL:        t.URL,
		Dest:       t.Dest,
		Status:     string(t.Status),
		TotalSize:  t.TotalSize,
		Downloaded: t.Downloaded,
		CreatedAt:  t.CreatedAt.Unix(),
		Error:      t.Error,
		Priority:   string(t.Priority),
		Speed:      t.Speed,
		Headers:    t.Headers,
	}
	if t.ETA != nil {
		secs := int64(t.ETA.Seconds())
		rec.ETASeconds = &secs
	}
	if t.Digest != nil {
		rec.Digest = string(t.Digest.Algorithm) + ":" + t.Digest.Hex
	}
	return rec
}

func taskFromRecord(rec state.TaskRecord) *Task {
	t := &Task{
		ID:         rec.ID,
		URL:        rec.URL,
		Dest:       rec.Dest,
		Status:     Status(rec.Status),
		TotalSize:  rec.TotalSize,
		Downloaded: rec.Downloaded,
		CreatedAt:  time.Unix(rec.CreatedAt, 0),
		Error:      rec.Error,
		Priority:   Priority(rec.Priority),
		Speed:      rec.Speed,
		Headers:    rec.Headers,
	}
	if rec.ETASeconds != nil {
		d := time.Duration(*rec.ETASeconds) * time.Second
		t.ETA = &d
	}
	if rec.Digest != "" {
		if exp, err := digest.ParseExpected(rec.Digest); err == nil {
			t.Digest = exp
		}
	}
	if t.Priority == "" {
		t.Priority = Normal
	}
	// Crash recovery: a task left mid-flight has no in-memory worker
	// group once the process restarts, so it must be demoted back to
	// Pending before it can be re-admitted.
	if t.Status == Downloading {
		t.Status = Pending
	}
	return t
}
