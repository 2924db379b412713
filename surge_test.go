package surge

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/events"
	"github.com/rivermoor/surge/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestSurge_AddAndComplete(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-facade")
	require.NoError(t, err)
	defer cleanup()

	server := testutil.NewMockServerT(t, testutil.WithFileSize(8*engineconfig.KB), testutil.WithRangeSupport(true))
	defer server.Close()

	s := New(Options{
		StatePath: filepath.Join(dir, "queue.json"),
		Runtime: &engineconfig.RuntimeConfig{
			MaxConcurrentTasks: 1,
			MinChunkSize:       4 * engineconfig.KB,
			MaxChunkSize:       64 * engineconfig.KB,
			TargetChunkSize:    16 * engineconfig.KB,
		},
	})
	require.NoError(t, s.LoadState())

	id, err := s.Add(server.URL(), filepath.Join(dir, "out.bin"), AddOptions{})
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == events.TaskCompleted && ev.TaskID == id {
				task, ok := s.Get(id)
				require.True(t, ok)
				require.Equal(t, Completed, task.Status)
				return
			}
			if ev.Kind == events.TaskFailed && ev.TaskID == id {
				t.Fatalf("task failed: %s", ev.Err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for task completion")
		}
	}
}

func TestSurge_PeekDoesNotAdmit(t *testing.T) {
	dir, cleanup, err := testutil.TempDir("surge-peek")
	require.NoError(t, err)
	defer cleanup()

	statePath := filepath.Join(dir, "queue.json")
	s1 := New(Options{StatePath: statePath})
	require.NoError(t, s1.LoadState())
	_, err = s1.Add("http://example.invalid/a", filepath.Join(dir, "a.bin"), AddOptions{})
	require.NoError(t, err)

	s2 := New(Options{StatePath: statePath})
	tasks, err := s2.Peek()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, Pending, tasks[0].Status)
}
