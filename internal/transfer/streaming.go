package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rivermoor/surge/internal/limiter"
	"github.com/rivermoor/surge/internal/surgeerr"
)

// runStreaming copies the response body straight to spec.Dest with a single
// GET and no Range header, for origins that classify() found don't support
// ranged reads. There is no resume path here: a stream interruption is a
// task-level failure, not a retryable chunk.
func runStreaming(ctx context.Context, client *http.Client, spec Spec, deltas chan<- Delta) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return 0, surgeerr.New(surgeerr.HTTP, "building streaming GET", err)
	}
	injectHeaders(req, spec.Headers, spec.Runtime.GetUserAgent(), "")

	resp, err := client.Do(req)
	if err != nil {
		return 0, surgeerr.New(surgeerr.HTTP, "streaming GET failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, surgeerr.New(surgeerr.HTTP, fmt.Sprintf("streaming GET returned %d", resp.StatusCode), nil)
	}

	f, err := os.OpenFile(spec.Dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, surgeerr.New(surgeerr.IO, "creating destination file", err)
	}

	success := false
	defer func() {
		_ = f.Close()
		if !success {
			_ = os.Remove(spec.Dest)
		}
	}()

	lim := limiter.New(spec.SpeedLimitBytesPerSec)
	buf := make([]byte, spec.Runtime.GetWorkerBufferSize())

	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := lim.Wait(ctx, int64(n)); err != nil {
				return written, err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, surgeerr.New(surgeerr.IO, "writing stream", werr)
			}
			written += int64(n)
			select {
			case deltas <- Delta{Kind: StreamDelta, Bytes: int64(n)}:
			default:
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, surgeerr.New(surgeerr.Stream, "reading stream body", rerr)
		}
	}

	if err := f.Sync(); err != nil {
		return written, surgeerr.New(surgeerr.IO, "syncing destination file", err)
	}
	success = true
	return written, nil
}
