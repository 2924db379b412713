// Package surge is the public entry point: one Surge value wraps the
// queue scheduler and its event bus, unifying what surge-downloader-surge
// split across a WorkerPool type and ad hoc cmd-layer glue into a single
// façade.
package surge

import (
	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/events"
	"github.com/rivermoor/surge/internal/queue"
)

// Re-exported so callers never need to import internal/queue directly.
type (
	Task       = queue.Task
	Status     = queue.Status
	Priority   = queue.Priority
	AddOptions = queue.AddOptions
	Expected   = digest.Expected
)

const (
	Low    = queue.Low
	Normal = queue.Normal
	High   = queue.High
)

const (
	Pending     = queue.Pending
	Downloading = queue.Downloading
	Paused      = queue.Paused
	Completed   = queue.Completed
	Failed      = queue.Failed
	Cancelled   = queue.Cancelled
)

// Options configures a Surge instance.
type Options struct {
	// StatePath is where the queue-level state file lives. Callers
	// typically resolve this via internal/surgeconfig.DefaultQueueStatePath.
	StatePath string
	Runtime   *engineconfig.RuntimeConfig
	// OnComplete, if set, is invoked once per task after its terminal
	// status is recorded, with a non-nil err iff the task Failed.
	OnComplete func(taskID string, err error)
}

// Surge is the single entry point: add/pause/resume/cancel/remove/list/
// get/clear_completed/load_from_state, plus an event stream.
type Surge struct {
	queue *queue.Queue
	bus   *events.Bus
}

// New constructs a Surge ready to accept tasks. It does not read any
// prior state; call LoadState for that.
func New(opts Options) *Surge {
	bus := events.NewBus(engineconfig.EventBusCapacity)
	q := queue.New(opts.StatePath, bus, opts.Runtime)
	if opts.OnComplete != nil {
		q.SetOnComplete(opts.OnComplete)
	}
	return &Surge{queue: q, bus: bus}
}

// Events returns the receiver observers read task/progress/verification
// events from.
func (s *Surge) Events() <-chan events.Event {
	return s.bus.Events()
}

// LoadState reads the queue-level state file, demoting any task left
// Downloading to Pending (crash recovery), then starts admitting pending
// tasks up to the configured concurrency limit.
func (s *Surge) LoadState() error {
	if err := s.queue.LoadFromState(); err != nil {
		return err
	}
	s.queue.Start()
	return nil
}

// Peek reads the queue-level state file and returns its tasks without
// starting admission, for read-only inspection (e.g. a CLI's ls command)
// that must not compete with a live instance for the task slots.
func (s *Surge) Peek() ([]Task, error) {
	if err := s.queue.LoadFromState(); err != nil {
		return nil, err
	}
	return s.queue.List(), nil
}

// Add enqueues a new download. See queue.AddOptions for priority, digest,
// extra headers, and auto-rename.
func (s *Surge) Add(url, dest string, opts AddOptions) (string, error) {
	return s.queue.Add(url, dest, opts)
}

func (s *Surge) Pause(id string) error  { return s.queue.Pause(id) }
func (s *Surge) Resume(id string) error { return s.queue.Resume(id) }
func (s *Surge) Cancel(id string) error { return s.queue.Cancel(id) }
func (s *Surge) Remove(id string) error { return s.queue.Remove(id) }

func (s *Surge) List() []Task           { return s.queue.List() }
func (s *Surge) Get(id string) (Task, bool) { return s.queue.Get(id) }

func (s *Surge) ClearCompleted() error { return s.queue.ClearCompleted() }
