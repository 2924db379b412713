package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/limiter"
	"github.com/rivermoor/surge/internal/state"
	"github.com/rivermoor/surge/internal/surgeerr"
)

// chunkPlan is one in-memory chunk descriptor; a chunk is finished iff
// current == end+1.
type chunkPlan struct {
	index    int
	start    int64
	end      int64 // inclusive
	current  int64
	finished bool
}

func (c *chunkPlan) remaining() int64 { return c.end + 1 - c.current }

// partitionChunks splits [0, totalSize) into spans of at most chunkSize
// bytes, the final span possibly shorter, numbered ascending by start.
func partitionChunks(totalSize, chunkSize int64) []chunkPlan {
	if totalSize <= 0 {
		return nil
	}
	var chunks []chunkPlan
	idx := 0
	for start := int64(0); start < totalSize; start += chunkSize {
		end := start + chunkSize - 1
		if end >= totalSize {
			end = totalSize - 1
		}
		chunks = append(chunks, chunkPlan{index: idx, start: start, end: end, current: start})
		idx++
	}
	return chunks
}

// runChunked partitions the destination, pre-allocates it, and runs one
// worker per configured connection, each claiming the next unfinished
// chunk, until every chunk is finished.
func runChunked(ctx context.Context, client *http.Client, spec Spec, totalSize int64, deltas chan<- Delta) error {
	chunkSize := chooseChunkSize(totalSize, spec.Runtime)

	chunks := resumeOrPartition(spec.Dest, spec.URL, totalSize, chunkSize)

	f, err := os.OpenFile(spec.Dest, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return surgeerr.New(surgeerr.IO, "opening destination file", err)
	}
	defer f.Close()
	if err := f.Truncate(totalSize); err != nil {
		return surgeerr.New(surgeerr.IO, "pre-allocating destination file", err)
	}

	var stateMu sync.Mutex
	persist := func() error {
		stateMu.Lock()
		defer stateMu.Unlock()
		return saveChunkState(spec.URL, spec.Dest, totalSize, chunks)
	}
	if err := persist(); err != nil {
		return err
	}

	lim := limiter.New(spec.SpeedLimitBytesPerSec)

	var nextMu sync.Mutex
	next := 0
	claim := func() (*chunkPlan, bool) {
		nextMu.Lock()
		defer nextMu.Unlock()
		for next < len(chunks) {
			c := &chunks[next]
			next++
			if !c.finished {
				return c, true
			}
		}
		return nil, false
	}

	numWorkers := spec.Runtime.GetMaxConnectionsPerHost()
	if numWorkers > len(chunks) {
		numWorkers = len(chunks)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, numWorkers)
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, ok := claim()
				if !ok {
					return
				}
				if err := downloadChunk(ctx, client, spec, f, c, lim, deltas, persist); err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := f.Sync(); err != nil {
		return surgeerr.New(surgeerr.IO, "syncing destination file", err)
	}
	return state.DeleteFileState(spec.Dest)
}

// resumeOrPartition reuses <dest>.json's chunk list if present and its
// stored URL matches; otherwise it partitions fresh, overwriting any
// partial content.
func resumeOrPartition(dest, rawURL string, totalSize, chunkSize int64) []chunkPlan {
	fs, err := state.LoadFileState(dest)
	if err == nil && fs != nil && fs.URL == rawURL && !fs.IsStreaming && len(fs.Chunks) > 0 {
		chunks := make([]chunkPlan, len(fs.Chunks))
		for i, c := range fs.Chunks {
			chunks[i] = chunkPlan{
				index: c.Index, start: c.Start, end: c.End,
				current: c.Current, finished: c.IsFinished,
			}
		}
		return chunks
	}
	return partitionChunks(totalSize, chunkSize)
}

func chooseChunkSize(totalSize int64, cfg *engineconfig.RuntimeConfig) int64 {
	target := cfg.GetTargetChunkSize()
	min := cfg.GetMinChunkSize()
	max := cfg.GetMaxChunkSize()
	if target < min {
		target = min
	}
	if target > max {
		target = max
	}
	return engineconfig.AlignDown(target)
}

func saveChunkState(url, dest string, totalSize int64, chunks []chunkPlan) error {
	cs := make([]state.ChunkState, len(chunks))
	for i, c := range chunks {
		cs[i] = state.ChunkState{
			Index: c.index, Start: c.start, End: c.end,
			Current: c.current, IsFinished: c.finished,
		}
	}
	total := totalSize
	return state.SaveFileState(dest, &state.FileState{
		URL:       url,
		TotalSize: &total,
		Chunks:    cs,
	})
}

// downloadChunk issues the ranged GET for c and streams the response into
// f at c's current offset, retrying on HTTP/stream error up to
// cfg.GetMaxChunkRetries() times with a backoff delay.
func downloadChunk(ctx context.Context, client *http.Client, spec Spec, f *os.File, c *chunkPlan, lim *limiter.Limiter, deltas chan<- Delta, persist func() error) error {
	cfg := spec.Runtime
	maxRetries := cfg.GetMaxChunkRetries()
	buf := make([]byte, cfg.GetWorkerBufferSize())

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(cfg.GetChunkRetryDelay(), lastErr)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		err := attemptChunk(ctx, client, spec, f, c, lim, buf, deltas, persist, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return surgeerr.New(surgeerr.HTTP, fmt.Sprintf("chunk %d failed after %d retries", c.index, maxRetries), lastErr)
}

func attemptChunk(ctx context.Context, client *http.Client, spec Spec, f *os.File, c *chunkPlan, lim *limiter.Limiter, buf []byte, deltas chan<- Delta, persist func() error, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return surgeerr.New(surgeerr.HTTP, "building ranged GET", err)
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", c.current, c.end)
	injectHeaders(req, spec.Headers, spec.Runtime.GetUserAgent(), rangeHeader)

	resp, err := client.Do(req)
	if err != nil {
		return surgeerr.New(surgeerr.HTTP, "ranged GET failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return surgeerr.New(surgeerr.HTTP, "rate limited (429)", newRateLimitError(resp, attempt))
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return surgeerr.New(surgeerr.HTTP, fmt.Sprintf("ranged GET returned %d", resp.StatusCode), nil)
	}

	offset := c.current
	for {
		if c.remaining() <= 0 {
			break
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if err := lim.Wait(ctx, int64(n)); err != nil {
				return err
			}
			if _, werr := f.WriteAt(buf[:n], offset); werr != nil {
				return surgeerr.New(surgeerr.IO, "writing chunk", werr)
			}
			offset += int64(n)
			c.current = offset
			c.finished = c.current == c.end+1
			if err := persist(); err != nil {
				return err
			}
			select {
			case deltas <- Delta{Kind: ChunkDelta, ChunkIndex: c.index, Bytes: int64(n)}:
			default:
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return surgeerr.New(surgeerr.Stream, "reading chunk body", rerr)
		}
	}

	if !c.finished {
		return surgeerr.New(surgeerr.Stream, "chunk ended before reaching its end offset", nil)
	}
	return nil
}
