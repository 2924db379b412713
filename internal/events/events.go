// Package events implements the bounded, non-blocking fan-out channel of
// task/progress/verification events observers read from.
package events

import "time"

// Kind identifies the category of an Event.
type Kind int

const (
	TaskAdded Kind = iota
	TaskStarted
	TaskCompleted
	TaskFailed
	TaskPaused
	TaskResumed
	TaskCancelled
	ProgressUpdated
	VerifyStarted
	VerifyCompleted
)

func (k Kind) String() string {
	switch k {
	case TaskAdded:
		return "TaskAdded"
	case TaskStarted:
		return "TaskStarted"
	case TaskCompleted:
		return "TaskCompleted"
	case TaskFailed:
		return "TaskFailed"
	case TaskPaused:
		return "TaskPaused"
	case TaskResumed:
		return "TaskResumed"
	case TaskCancelled:
		return "TaskCancelled"
	case ProgressUpdated:
		return "ProgressUpdated"
	case VerifyStarted:
		return "VerifyStarted"
	case VerifyCompleted:
		return "VerifyCompleted"
	default:
		return "Unknown"
	}
}

// Event is the single struct shape carried by the bus; Kind discriminates
// which fields are meaningful.
type Event struct {
	Kind     Kind
	TaskID   string
	At       time.Time

	// TaskFailed
	Err string

	// ProgressUpdated
	Downloaded int64
	Total      int64
	Speed      float64
	ETA        *time.Duration

	// VerifyCompleted
	VerifySuccess bool
}

// Bus is a bounded multi-producer, single-consumer event channel. Sends
// never block the producer: a full channel drops the event.
type Bus struct {
	ch chan Event
}

// NewBus creates a Bus with the given channel capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Events returns the single receiver handle consumers read from.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Send attempts to enqueue ev, dropping it silently if the channel is
// full. At is stamped if not already set.
func (b *Bus) Send(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case b.ch <- ev:
	default:
	}
}

// Close shuts down the bus. Subsequent Send calls will panic, matching
// close-channel semantics; callers must stop producing before closing.
func (b *Bus) Close() {
	close(b.ch)
}
