package filelock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLockUnlock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock := NewFileLock(lockPath)
	if err := lock.Lock(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
}

func TestTryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock := NewFileLock(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Error("expected to acquire uncontended lock")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "data.json")

	if err := AtomicWrite(path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("unexpected content: %s", data)
	}
}

func TestAtomicWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	if err := AtomicWrite(path, []byte("first")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, []byte("second")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("expected overwrite, got %s", data)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	if err := AtomicWrite(path, []byte("content")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestLockAndWriteCreatesDirectory(t *testing.T) {
	// First write into a store root that does not exist yet: the lock file
	// must not be created before its directory is.
	path := filepath.Join(t.TempDir(), "checkpoints", "task-1.json")

	if err := LockAndWrite(path, []byte(`{"task_id":"task-1"}`)); err != nil {
		t.Fatalf("LockAndWrite into fresh directory failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if string(data) != `{"task_id":"task-1"}` {
		t.Errorf("unexpected content: %s", data)
	}
}

func TestLockAndWriteConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")

	const writers = 5
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := LockAndWrite(path, []byte("payload")); err != nil {
				t.Errorf("LockAndWrite failed: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected content after concurrent writes: %s", data)
	}
}
