package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/events"
	"github.com/rivermoor/surge/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, maxConcurrent int) (*Queue, *events.Bus, func()) {
	t.Helper()
	dir, cleanup, err := testutil.TempDir("surge-queue")
	require.NoError(t, err)

	bus := events.NewBus(256)
	runtime := &engineconfig.RuntimeConfig{
		MaxConcurrentTasks: maxConcurrent,
		MinChunkSize:       4 * engineconfig.KB,
		MaxChunkSize:       64 * engineconfig.KB,
		TargetChunkSize:    16 * engineconfig.KB,
		WorkerBufferSize:   4 * engineconfig.KB,
		MaxChunkRetries:    1,
		ChunkRetryDelay:    5 * time.Millisecond,
	}
	q := New(filepath.Join(dir, "queue.json"), bus, runtime)
	return q, bus, cleanup
}

func waitForEvent(t *testing.T, bus *events.Bus, kind events.Kind, id string, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-bus.Events():
			if ev.Kind == kind && (id == "" || ev.TaskID == id) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind=%v id=%s", kind, id)
		}
	}
}

func TestQueue_AddEmitsAddedAndPersists(t *testing.T) {
	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-dest")
	require.NoError(t, err)
	defer c2()

	id, err := q.Add("http://example.invalid/a", filepath.Join(dir, "a.bin"), AddOptions{})
	require.NoError(t, err)
	waitForEvent(t, bus, events.TaskAdded, id, time.Second)

	task, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, Normal, task.Priority)
}

func TestQueue_AutoRenameAppendsCounter(t *testing.T) {
	q, _, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-rename")
	require.NoError(t, err)
	defer c2()

	dest, err := testutil.CreateTestFile(dir, "movie.mp4", 16, false)
	require.NoError(t, err)

	id, err := q.Add("http://example.invalid/m", dest, AddOptions{AutoRename: true})
	require.NoError(t, err)

	task, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dir, "movie (1).mp4"), task.Dest)
}

func TestQueue_PriorityOrdersAdmission(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(8*engineconfig.KB), testutil.WithRangeSupport(true))
	defer server.Close()

	// With one slot, Add admits the first task at once; a slow blocker holds
	// that slot so the three prioritised tasks are all Pending when it frees.
	blocker := testutil.NewMockServerT(t,
		testutil.WithFileSize(64*engineconfig.KB),
		testutil.WithRangeSupport(true),
		testutil.WithByteLatency(2*time.Microsecond),
	)
	defer blocker.Close()

	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-priority")
	require.NoError(t, err)
	defer c2()

	blockerID, err := q.Add(blocker.URL(), filepath.Join(dir, "blocker.bin"), AddOptions{})
	require.NoError(t, err)
	lowID, err := q.Add(server.URL(), filepath.Join(dir, "low.bin"), AddOptions{Priority: Low})
	require.NoError(t, err)
	highID, err := q.Add(server.URL(), filepath.Join(dir, "high.bin"), AddOptions{Priority: High})
	require.NoError(t, err)
	normalID, err := q.Add(server.URL(), filepath.Join(dir, "normal.bin"), AddOptions{Priority: Normal})
	require.NoError(t, err)

	var order []string
	for i := 0; i < 4; i++ {
		ev := waitForEvent(t, bus, events.TaskStarted, "", 5*time.Second)
		order = append(order, ev.TaskID)
		waitForEvent(t, bus, events.TaskCompleted, ev.TaskID, 5*time.Second)
	}

	require.Equal(t, []string{blockerID, highID, normalID, lowID}, order)
}

func TestQueue_PauseResumePreservesDownloaded(t *testing.T) {
	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-pauseresume")
	require.NoError(t, err)
	defer c2()

	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(64*engineconfig.KB),
		testutil.WithRangeSupport(true),
		testutil.WithByteLatency(2*time.Microsecond),
	)
	defer server.Close()

	id, err := q.Add(server.URL(), filepath.Join(dir, "slow.bin"), AddOptions{})
	require.NoError(t, err)
	waitForEvent(t, bus, events.TaskStarted, id, 2*time.Second)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Pause(id))
	waitForEvent(t, bus, events.TaskPaused, id, 2*time.Second)

	task, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, Paused, task.Status)

	require.NoError(t, q.Resume(id))
	waitForEvent(t, bus, events.TaskResumed, id, time.Second)
	waitForEvent(t, bus, events.TaskCompleted, id, 5*time.Second)
}

func TestQueue_CancelRemovesFiles(t *testing.T) {
	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-cancel")
	require.NoError(t, err)
	defer c2()

	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(64*engineconfig.KB),
		testutil.WithRangeSupport(true),
		testutil.WithByteLatency(2*time.Microsecond),
	)
	defer server.Close()

	dest := filepath.Join(dir, "cancel.bin")
	id, err := q.Add(server.URL(), dest, AddOptions{})
	require.NoError(t, err)
	waitForEvent(t, bus, events.TaskStarted, id, 2*time.Second)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.Cancel(id))
	waitForEvent(t, bus, events.TaskCancelled, id, 2*time.Second)

	require.False(t, testutil.FileExists(dest))
	require.False(t, testutil.FileExists(dest+".json"))
}

func TestQueue_RemoveRejectsNonTerminal(t *testing.T) {
	q, _, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-remove")
	require.NoError(t, err)
	defer c2()

	id, err := q.Add("http://example.invalid/x", filepath.Join(dir, "x.bin"), AddOptions{})
	require.NoError(t, err)

	err = q.Remove(id)
	require.Error(t, err)
}

func TestQueue_DigestMismatchFails(t *testing.T) {
	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-digest")
	require.NoError(t, err)
	defer c2()

	server := testutil.NewMockServerT(t, testutil.WithFileSize(4*engineconfig.KB), testutil.WithRangeSupport(true))
	defer server.Close()

	bad, err := digest.ParseExpected("sha256:0011223344556677001122334455667700112233445566770011223344556677")
	require.NoError(t, err)

	id, err := q.Add(server.URL(), filepath.Join(dir, "d.bin"), AddOptions{Digest: bad})
	require.NoError(t, err)

	waitForEvent(t, bus, events.VerifyStarted, id, 5*time.Second)
	ev := waitForEvent(t, bus, events.VerifyCompleted, id, 5*time.Second)
	require.False(t, ev.VerifySuccess)
	waitForEvent(t, bus, events.TaskFailed, id, 5*time.Second)

	task, ok := q.Get(id)
	require.True(t, ok)
	require.Equal(t, Failed, task.Status)
}

func TestQueue_ClearCompletedDropsOnlyCompleted(t *testing.T) {
	q, bus, cleanup := newTestQueue(t, 1)
	defer cleanup()

	dir, c2, err := testutil.TempDir("surge-clear")
	require.NoError(t, err)
	defer c2()

	server := testutil.NewMockServerT(t, testutil.WithFileSize(4*engineconfig.KB), testutil.WithRangeSupport(true))
	defer server.Close()

	id, err := q.Add(server.URL(), filepath.Join(dir, "c.bin"), AddOptions{})
	require.NoError(t, err)
	waitForEvent(t, bus, events.TaskCompleted, id, 5*time.Second)

	require.NoError(t, q.ClearCompleted())
	_, ok := q.Get(id)
	require.False(t, ok)
}
