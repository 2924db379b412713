package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/events"
	"github.com/rivermoor/surge/internal/speed"
	"github.com/rivermoor/surge/internal/state"
	"github.com/rivermoor/surge/internal/surgeerr"
	"github.com/rivermoor/surge/internal/transfer"
)

// runningTask is the worker-group handle the scheduler holds for exactly
// one task while it is Downloading.
type runningTask struct {
	cancel context.CancelFunc
}

// OnCompleteFunc is the single-method completion extension point: notified
// once per task with a non-nil err iff the task ended Failed (nil for
// Completed and for Cancelled, which is not a failure).
type OnCompleteFunc func(taskID string, err error)

// Queue is the priority-admitting scheduler: it owns the task map, the
// set of currently-running worker groups, and the on-disk queue-level
// state.
type Queue struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	running map[string]*runningTask

	createdAt int64

	store   *state.QueueStore
	bus     *events.Bus
	runtime *engineconfig.RuntimeConfig
	engine  *transfer.Engine

	onComplete OnCompleteFunc
}

// New creates a Queue persisting to statePath and publishing to bus. A nil
// runtime uses every engineconfig default.
func New(statePath string, bus *events.Bus, runtime *engineconfig.RuntimeConfig) *Queue {
	return &Queue{
		tasks:     make(map[string]*Task),
		running:   make(map[string]*runningTask),
		createdAt: time.Now().Unix(),
		store:     state.NewQueueStore(statePath),
		bus:       bus,
		runtime:   runtime,
		engine:    transfer.New(),
	}
}

// SetOnComplete installs the completion callback. Not safe to call
// concurrently with task activity; callers set it once at construction.
func (q *Queue) SetOnComplete(fn OnCompleteFunc) {
	q.mu.Lock()
	q.onComplete = fn
	q.mu.Unlock()
}

// LoadFromState reads the queue-level state file and replaces the
// in-memory task map with its contents, demoting any Downloading task to
// Pending for crash recovery — there is no worker group for it at
// startup. It does not start admission; callers do that explicitly once
// they're ready for activity to resume.
func (q *Queue) LoadFromState() error {
	qs, err := q.store.Load()
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = make(map[string]*Task)
	if qs != nil {
		q.createdAt = qs.CreatedAt
		for _, rec := range qs.Tasks {
			t := taskFromRecord(rec)
			q.tasks[t.ID] = t
		}
	}
	return nil
}

// Start admits any Pending tasks up to the configured concurrency limit.
// Callers use this after LoadFromState, which deliberately does not
// admit on its own so state can be inspected before activity resumes.
func (q *Queue) Start() {
	q.processQueue()
}

// AddOptions configures an Add call; zero value is valid (Normal
// priority, no digest, no extra headers, no auto-rename).
type AddOptions struct {
	Priority   Priority
	Digest     *digest.Expected
	Headers    map[string]string
	AutoRename bool
}

// Add creates a Pending task for url/dest and returns its ID. If
// opts.AutoRename is set and dest already exists, a non-colliding sibling
// path is chosen before the record is created.
func (q *Queue) Add(url, dest string, opts AddOptions) (string, error) {
	if opts.AutoRename {
		dest = nextAvailablePath(dest)
	}
	if opts.Priority == "" {
		opts.Priority = Normal
	}

	id := newTaskID()
	t := &Task{
		ID:        id,
		URL:       url,
		Dest:      dest,
		Status:    Pending,
		CreatedAt: time.Now(),
		Priority:  opts.Priority,
		Headers:   opts.Headers,
		Digest:    opts.Digest,
	}

	q.mu.Lock()
	q.tasks[id] = t
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return "", err
	}
	q.bus.Send(events.Event{Kind: events.TaskAdded, TaskID: id})
	q.processQueue()
	return id, nil
}

// Pause aborts id's worker group (if any) and sets it Paused. A no-op if
// id is not Downloading.
func (q *Queue) Pause(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return surgeerr.New(surgeerr.TaskNotFound, id, nil)
	}
	if t.Status != Downloading {
		q.mu.Unlock()
		return nil
	}
	if rt, ok := q.running[id]; ok {
		rt.cancel()
		delete(q.running, id)
	}
	t.Status = Paused
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return err
	}
	q.bus.Send(events.Event{Kind: events.TaskPaused, TaskID: id})
	return nil
}

// Resume re-enters id into Pending so the next process_queue tick can
// re-admit it. A no-op if id is not Paused.
func (q *Queue) Resume(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return surgeerr.New(surgeerr.TaskNotFound, id, nil)
	}
	if t.Status != Paused {
		q.mu.Unlock()
		return nil
	}
	t.Status = Pending
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		return err
	}
	q.bus.Send(events.Event{Kind: events.TaskResumed, TaskID: id})
	q.processQueue()
	return nil
}

// Cancel aborts any worker group, deletes the destination file and its
// sibling file-level state, and marks id Cancelled.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return surgeerr.New(surgeerr.TaskNotFound, id, nil)
	}
	if t.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}
	if rt, ok := q.running[id]; ok {
		rt.cancel()
		delete(q.running, id)
	}
	t.Status = Cancelled
	dest := t.Dest
	onComplete := q.onComplete
	q.mu.Unlock()

	_ = os.Remove(dest)
	_ = state.DeleteFileState(dest)

	if err := q.persist(); err != nil {
		return err
	}
	q.bus.Send(events.Event{Kind: events.TaskCancelled, TaskID: id})
	if onComplete != nil {
		onComplete(id, nil)
	}
	q.processQueue()
	return nil
}

// Remove drops a terminal task from the queue. Returns
// CannotRemoveInCurrentStatus otherwise.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return surgeerr.New(surgeerr.TaskNotFound, id, nil)
	}
	if !t.Status.IsTerminal() {
		q.mu.Unlock()
		return surgeerr.New(surgeerr.CannotRemoveInCurrentStatus, id, nil)
	}
	delete(q.tasks, id)
	q.mu.Unlock()

	return q.persist()
}

// ClearCompleted drops every Completed task from the queue.
func (q *Queue) ClearCompleted() error {
	q.mu.Lock()
	for id, t := range q.tasks {
		if t.Status == Completed {
			delete(q.tasks, id)
		}
	}
	q.mu.Unlock()

	return q.persist()
}

// List returns a snapshot of every known task.
func (q *Queue) List() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.snapshot())
	}
	return out
}

// Get returns a snapshot of one task, and whether it was found.
func (q *Queue) Get(id string) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.snapshot(), true
}

// processQueue admits Pending tasks, highest priority first, up to
// max_concurrent_tasks − (currently Downloading).
func (q *Queue) processQueue() {
	q.mu.Lock()
	running := len(q.running)
	limit := q.runtime.GetMaxConcurrentTasks()
	slots := limit - running
	if slots <= 0 {
		q.mu.Unlock()
		return
	}

	var pending []*Task
	for _, t := range q.tasks {
		if t.Status == Pending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority.rank() > pending[j].Priority.rank()
	})
	if len(pending) > slots {
		pending = pending[:slots]
	}

	ctxs := make([]context.Context, 0, len(pending))
	for _, t := range pending {
		t.Status = Downloading
		ctx, cancel := context.WithCancel(context.Background())
		q.running[t.ID] = &runningTask{cancel: cancel}
		ctxs = append(ctxs, ctx)
	}
	q.mu.Unlock()

	if err := q.persist(); err != nil {
		// Best-effort: the in-memory transition already happened; a
		// later state-changing op will persist a consistent snapshot.
		_ = err
	}
	for i, t := range pending {
		q.bus.Send(events.Event{Kind: events.TaskStarted, TaskID: t.ID})
		go q.runTask(ctxs[i], t.ID)
	}
}

// runTask drives one task's transfer engine to completion, aggregates its
// deltas into cumulative progress, verifies its digest if one was
// requested, and writes the terminal state.
func (q *Queue) runTask(ctx context.Context, id string) {
	q.mu.RLock()
	t, ok := q.tasks[id]
	q.mu.RUnlock()
	if !ok {
		return
	}

	spec := transfer.Spec{
		URL:                   t.URL,
		Dest:                  t.Dest,
		Headers:               t.Headers,
		Digest:                t.Digest,
		SpeedLimitBytesPerSec: q.runtime.GetSpeedLimitBytesPerSec(),
		Runtime:               q.runtime,
	}

	deltas := make(chan transfer.Delta, 64)
	aggDone := make(chan struct{})
	go q.aggregate(id, deltas, aggDone)

	result, err := q.engine.Download(ctx, spec, deltas)
	close(deltas)
	<-aggDone

	// Pause and Cancel flip status and drop the running-task handle
	// synchronously, before this goroutine observes ctx's cancellation;
	// when that race wins, the cooperative abort below must not clobber
	// the status they already set.
	q.mu.RLock()
	abortedStatus := t.Status
	q.mu.RUnlock()
	if abortedStatus == Paused || abortedStatus == Cancelled {
		return
	}

	var finalErr error
	if err != nil {
		finalErr = err
	} else if t.Digest != nil {
		q.bus.Send(events.Event{Kind: events.VerifyStarted, TaskID: id})
		ok, verr := digest.Verify(t.Dest, t.Digest)
		if verr != nil {
			finalErr = verr
		} else if !ok {
			finalErr = surgeerr.New(surgeerr.ChecksumVerificationFailed, "checksum verification failed", nil)
		}
		q.bus.Send(events.Event{Kind: events.VerifyCompleted, TaskID: id, VerifySuccess: finalErr == nil})
	}

	q.mu.Lock()
	delete(q.running, id)
	if finalErr == nil {
		t.Status = Completed
		if result.TotalSize > 0 {
			t.TotalSize = result.TotalSize
			t.Downloaded = result.TotalSize
		}
	} else {
		t.Status = Failed
		t.Error = finalErr.Error()
	}
	onComplete := q.onComplete
	q.mu.Unlock()

	_ = q.persist()
	if finalErr == nil {
		q.bus.Send(events.Event{Kind: events.TaskCompleted, TaskID: id})
	} else {
		q.bus.Send(events.Event{Kind: events.TaskFailed, TaskID: id, Err: finalErr.Error()})
	}
	if onComplete != nil {
		onComplete(id, finalErr)
	}

	q.processQueue()
}

// aggregate converts raw chunk/stream deltas into cumulative progress,
// coalescing Progress events to the configured cadence while always
// flushing the final delta so the last reported value is never stale.
func (q *Queue) aggregate(id string, deltas <-chan transfer.Delta, done chan<- struct{}) {
	defer close(done)

	q.mu.RLock()
	t := q.tasks[id]
	q.mu.RUnlock()
	if t == nil {
		for range deltas {
		}
		return
	}

	calc := speed.New(t.TotalSize)
	coalesce := q.runtime.GetProgressCoalesceWindow()
	var downloaded int64
	var lastEmit time.Time

	emit := func(force bool) {
		now := time.Now()
		if !force && now.Sub(lastEmit) < coalesce {
			return
		}
		lastEmit = now
		sp, eta := calc.Update(downloaded)

		q.mu.Lock()
		t.Downloaded = downloaded
		t.Speed = sp
		t.ETA = eta
		q.mu.Unlock()

		q.bus.Send(events.Event{
			Kind: events.ProgressUpdated, TaskID: id,
			Downloaded: downloaded, Total: t.TotalSize, Speed: sp, ETA: eta,
		})
	}

	for d := range deltas {
		if d.Kind == transfer.SizeKnown {
			q.mu.Lock()
			t.TotalSize = d.Bytes
			q.mu.Unlock()
			calc.SetTotalSize(d.Bytes)
			emit(true)
			continue
		}
		downloaded += d.Bytes
		emit(false)
	}
	emit(true)
}

func (q *Queue) persist() error {
	q.mu.RLock()
	recs := make([]state.TaskRecord, 0, len(q.tasks))
	for _, t := range q.tasks {
		recs = append(recs, t.toRecord())
	}
	createdAt := q.createdAt
	q.mu.RUnlock()

	return q.store.Save(recs, createdAt)
}

func newTaskID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// nextAvailablePath finds the smallest k ≥ 1 such that "<stem> (k)<ext>"
// does not exist, so auto-rename never collides with an existing file.
func nextAvailablePath(dest string) string {
	if _, err := os.Stat(dest); err != nil {
		return dest
	}
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for k := 1; ; k++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, k, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}
