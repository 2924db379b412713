// Package transfer implements the per-task chunked/streaming download state
// machine: classification, chunked-mode workers, streaming-mode copy,
// header injection, and resume from file-level state.
package transfer

import (
	"time"

	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/engineconfig"
)

// Spec is the caller-supplied description of one transfer, translated
// from a queue.Task by the scheduler.
type Spec struct {
	URL     string
	Dest    string
	Headers map[string]string
	Digest  *digest.Expected

	SpeedLimitBytesPerSec int64
	Runtime               *engineconfig.RuntimeConfig
}

// DeltaKind discriminates the shapes of progress delta an Engine reports.
type DeltaKind int

const (
	ChunkDelta DeltaKind = iota
	StreamDelta
	// SizeKnown reports the classified total size as soon as the HEAD
	// probe returns, ahead of any chunk workers starting. Chunked
	// transfers always send exactly one of these before any ChunkDelta;
	// streaming transfers never send one, since their total size isn't
	// known until the transfer finishes.
	SizeKnown
)

// Delta is one unit of progress reported on the channel passed to
// Engine.Download.
type Delta struct {
	Kind       DeltaKind
	ChunkIndex int
	Bytes      int64 // bytes written in this delta; for SizeKnown, the total size itself
}

// Result is returned by Engine.Download on success, carrying the final
// size actually written (needed when the classification found no
// Content-Length, i.e. streaming mode).
type Result struct {
	TotalSize int64
	Elapsed   time.Duration
}
