package state

import (
	"path/filepath"
	"testing"
)

func TestFileStateRoundTrip(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.bin")
	total := int64(10 * 1024 * 1024)
	want := &FileState{
		URL:       "http://h/a",
		TotalSize: &total,
		Chunks: []ChunkState{
			{Index: 0, Start: 0, End: 4*1024*1024 - 1, Current: 4 * 1024 * 1024, IsFinished: true},
			{Index: 1, Start: 4 * 1024 * 1024, End: 8*1024*1024 - 1, Current: 4 * 1024 * 1024, IsFinished: false},
		},
	}

	if err := SaveFileState(dest, want); err != nil {
		t.Fatalf("SaveFileState: %v", err)
	}

	got, err := LoadFileState(dest)
	if err != nil {
		t.Fatalf("LoadFileState: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil state")
	}
	if got.URL != want.URL || len(got.Chunks) != len(want.Chunks) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.Chunks[0].IsFinished {
		t.Error("chunk 0 should be finished after round trip")
	}
}

func TestLoadFileStateMissingFileReturnsNilNil(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing.bin")
	got, err := LoadFileState(dest)
	if err != nil {
		t.Fatalf("LoadFileState: %v", err)
	}
	if got != nil {
		t.Error("expected nil state for missing file")
	}
}

func TestDeleteFileState(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.bin")
	_ = SaveFileState(dest, &FileState{URL: "http://h/a"})

	if err := DeleteFileState(dest); err != nil {
		t.Fatalf("DeleteFileState: %v", err)
	}
	got, err := LoadFileState(dest)
	if err != nil {
		t.Fatalf("LoadFileState: %v", err)
	}
	if got != nil {
		t.Error("expected state to be gone after delete")
	}

	// Deleting again should still succeed (idempotent).
	if err := DeleteFileState(dest); err != nil {
		t.Fatalf("second DeleteFileState: %v", err)
	}
}

func TestQueueStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	store := NewQueueStore(path)

	tasks := []TaskRecord{
		{ID: "1", URL: "http://h/a", Dest: "/t/a", Status: "Pending", Priority: "Normal", CreatedAt: 1000},
		{ID: "2", URL: "http://h/b", Dest: "/t/b", Status: "Completed", Priority: "High", CreatedAt: 1001},
	}

	if err := store.Save(tasks, 999); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil queue state")
	}
	if got.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", got.Version)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("Tasks = %d, want 2", len(got.Tasks))
	}
	if got.Tasks[0].ID != "1" || got.Tasks[1].ID != "2" {
		t.Errorf("unexpected task order/content: %+v", got.Tasks)
	}
}

func TestQueueStoreLoadMissingFileReturnsNilNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-queue.json")
	store := NewQueueStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Error("expected nil state for missing file")
	}
}
