// Package limiter implements a one-second fixed-window speed cap shared by
// every connection of a single download task.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter caps throughput to at most capBytesPerSec bytes in any rolling
// one-second window, approximated as a fixed window that resets every
// second. A nil *Limiter is a valid no-op limiter.
type Limiter struct {
	capBytesPerSec int64

	mu          sync.Mutex
	windowStart time.Time
	used        int64

	now func() time.Time
}

// New returns a Limiter capping throughput to capBytesPerSec bytes/s.
// capBytesPerSec <= 0 means unlimited; callers may still call Wait on the
// result, which becomes a permanent no-op.
func New(capBytesPerSec int64) *Limiter {
	if capBytesPerSec <= 0 {
		return nil
	}
	return &Limiter{
		capBytesPerSec: capBytesPerSec,
		windowStart:    time.Now(),
		now:            time.Now,
	}
}

// Wait blocks the caller, if necessary, so that at most capBytesPerSec
// bytes are admitted by this Limiter in any one-second window. A nil
// receiver is a no-op, matching the reference's nil-safe accessor idiom.
func (l *Limiter) Wait(ctx context.Context, n int64) error {
	if l == nil || n <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := l.now()
		if now.Sub(l.windowStart) >= time.Second {
			l.windowStart = now
			l.used = 0
		}

		l.used += n
		if l.used <= l.capBytesPerSec {
			l.mu.Unlock()
			return nil
		}

		sleepUntil := l.windowStart.Add(time.Second)
		l.mu.Unlock()

		d := sleepUntil.Sub(now)
		if d <= 0 {
			continue
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		l.mu.Lock()
		l.windowStart = l.now()
		l.used = 0
		l.mu.Unlock()
		return nil
	}
}
