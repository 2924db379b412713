// Package surgeerr defines the error taxonomy shared across the engine.
package surgeerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. Callers branch on it via errors.Is against one
// of the Err* sentinels below (see Error.Is), rather than parsing message
// text.
type Kind int

const (
	// Unknown is the zero value; it should never be returned deliberately.
	Unknown Kind = iota
	IO
	HTTP
	Stream
	JSON
	TaskNotFound
	TaskCancelled
	TaskFailed
	ChecksumVerificationFailed
	CannotRemoveInCurrentStatus
	Internal
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case HTTP:
		return "http"
	case Stream:
		return "stream"
	case JSON:
		return "json"
	case TaskNotFound:
		return "task_not_found"
	case TaskCancelled:
		return "task_cancelled"
	case TaskFailed:
		return "task_failed"
	case ChecksumVerificationFailed:
		return "checksum_verification_failed"
	case CannotRemoveInCurrentStatus:
		return "cannot_remove_in_current_status"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every public operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, surgeerr.ErrTaskNotFound) work by comparing kinds
// against the sentinel values below, rather than requiring Message and Err
// to match too.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinel values usable directly with errors.Is. Only kinds a caller
// outside this package actually needs to branch on get a sentinel here;
// others are inspected via their Kind field where they're produced.
var (
	ErrTaskNotFound                = &Error{Kind: TaskNotFound}
	ErrCannotRemoveInCurrentStatus = &Error{Kind: CannotRemoveInCurrentStatus}
)
