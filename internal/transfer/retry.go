package transfer

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// rateLimitError carries the origin's Retry-After (if any) so retryDelay
// can honour it instead of the flat configured backoff.
type rateLimitError struct {
	retryAfter time.Duration
	hasHeader  bool
	attempt    int
}

func (e *rateLimitError) Error() string { return "rate limited (429)" }

// newRateLimitError builds the error attemptChunk returns when the origin
// responds 429, parsing Retry-After (seconds or HTTP-date form).
func newRateLimitError(resp *http.Response, attempt int) *rateLimitError {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return &rateLimitError{attempt: attempt}
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return &rateLimitError{retryAfter: time.Duration(secs) * time.Second, hasHeader: true, attempt: attempt}
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return &rateLimitError{retryAfter: d, hasHeader: true, attempt: attempt}
		}
	}
	return &rateLimitError{attempt: attempt}
}

// retryDelay picks how long to wait before the next chunk retry attempt.
// The default delay is base (default 2s); when the prior attempt failed with
// an HTTP 429, this instead honours Retry-After if the origin sent one, or
// falls back to an exponential backoff with jitter
// (surge-downloader-surge/internal/download/limiter/ratelimiter.go's
// 1<<min(hits-1,5) capped at 60s, +-10% jitter). This never changes the
// attempt-count ceiling — only the spacing between attempts.
func retryDelay(base time.Duration, lastErr error) time.Duration {
	var rl *rateLimitError
	if !errors.As(lastErr, &rl) {
		return base
	}
	if rl.hasHeader {
		return rl.retryAfter
	}
	backoff := time.Duration(1<<minInt(rl.attempt, 5)) * time.Second
	if backoff > 60*time.Second {
		backoff = 60 * time.Second
	}
	return addJitter(backoff, 0.10)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	delta := float64(d) * fraction
	jitter := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(jitter)
}
