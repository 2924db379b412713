package transfer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/testutil"
	"github.com/stretchr/testify/require"
)

func testSpec(dest, url string) Spec {
	return Spec{
		URL:  url,
		Dest: dest,
		Runtime: &engineconfig.RuntimeConfig{
			MinChunkSize:     4 * engineconfig.KB,
			MaxChunkSize:     64 * engineconfig.KB,
			TargetChunkSize:  16 * engineconfig.KB,
			WorkerBufferSize: 4 * engineconfig.KB,
			MaxChunkRetries:  2,
			ChunkRetryDelay:  10 * time.Millisecond,
		},
	}
}

func TestDownload_ChunkedExactSingleChunk(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-chunked")
	require.NoError(t, err)
	defer cleanup()

	size := int64(8 * engineconfig.KB)
	server := testutil.NewMockServerT(t, testutil.WithFileSize(size), testutil.WithRangeSupport(true))
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	spec := testSpec(dest, server.URL())

	deltas := make(chan Delta, 64)
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := e.Download(ctx, spec, deltas)
	require.NoError(t, err)
	require.Equal(t, size, res.TotalSize)
	require.NoError(t, testutil.VerifyFileSize(dest, size))
}

func TestDownload_ChunkedMultipleChunksLastPartial(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-chunked-multi")
	require.NoError(t, err)
	defer cleanup()

	// 16KB target chunk, 40KB file => three chunks, last one 8KB.
	size := int64(40 * engineconfig.KB)
	server := testutil.NewMockServerT(t, testutil.WithFileSize(size), testutil.WithRangeSupport(true))
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	spec := testSpec(dest, server.URL())

	deltas := make(chan Delta, 256)
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := e.Download(ctx, spec, deltas)
	require.NoError(t, err)
	require.Equal(t, size, res.TotalSize)
	require.NoError(t, testutil.VerifyFileSize(dest, size))
	require.Greater(t, server.Stats().RangeRequests, int64(1))
}

func TestDownload_StreamingFallbackWhenNoRangeSupport(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-streaming")
	require.NoError(t, err)
	defer cleanup()

	size := int64(32 * engineconfig.KB)
	server := testutil.NewMockServerT(t, testutil.WithFileSize(size), testutil.WithRangeSupport(false))
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	spec := testSpec(dest, server.URL())

	deltas := make(chan Delta, 256)
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := e.Download(ctx, spec, deltas)
	require.NoError(t, err)
	require.Equal(t, size, res.TotalSize)
	require.NoError(t, testutil.VerifyFileSize(dest, size))
	require.Equal(t, int64(0), server.Stats().RangeRequests)
}

func TestDownload_ResumeReusesChunkList(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-resume")
	require.NoError(t, err)
	defer cleanup()

	size := int64(32 * engineconfig.KB)
	server := testutil.NewMockServerT(t, testutil.WithFileSize(size), testutil.WithRangeSupport(true))
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	chunkSize := chooseChunkSize(size, &engineconfig.RuntimeConfig{
		MinChunkSize: 4 * engineconfig.KB, MaxChunkSize: 64 * engineconfig.KB, TargetChunkSize: 16 * engineconfig.KB,
	})
	require.NoError(t, saveChunkState(server.URL(), dest, size, partitionChunks(size, chunkSize)))

	chunks := resumeOrPartition(dest, server.URL(), size, chunkSize)
	require.Len(t, chunks, len(partitionChunks(size, chunkSize)))

	// Mismatched URL must fall back to a fresh partition.
	fresh := resumeOrPartition(dest, "http://example.invalid/other", size, chunkSize)
	require.Len(t, fresh, len(partitionChunks(size, chunkSize)))
}

func TestDownload_RetriesThenFailsAfterMaxAttempts(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-retry-fail")
	require.NoError(t, err)
	defer cleanup()

	size := int64(16 * engineconfig.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithRangeSupport(true),
		testutil.WithFailAfterBytes(1024),
	)
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	spec := testSpec(dest, server.URL())
	spec.Runtime.MaxChunkRetries = 1
	spec.Runtime.ChunkRetryDelay = time.Millisecond

	deltas := make(chan Delta, 256)
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = e.Download(ctx, spec, deltas)
	require.Error(t, err)
}

func TestDownload_RateLimited429HonoursRetryAfter(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-429")
	require.NoError(t, err)
	defer cleanup()

	size := int64(4 * engineconfig.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithRangeSupport(true),
		testutil.WithRateLimitAfter(2),
	)
	defer server.Close()

	dest := filepath.Join(dir, "out.bin")
	spec := testSpec(dest, server.URL())
	spec.Runtime.MaxChunkRetries = 5
	spec.Runtime.ChunkRetryDelay = time.Millisecond

	deltas := make(chan Delta, 256)
	e := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// With a single chunk (file smaller than the 16KB chunk size) the HEAD probe
	// counts as request 1 and the GET as request 2, which triggers the 429
	// on the first attempt; the retry loop must recover.
	res, err := e.Download(ctx, spec, deltas)
	require.NoError(t, err)
	require.Equal(t, size, res.TotalSize)
}
