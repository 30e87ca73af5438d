// Package checkpoint persists per-task progress snapshots so an interrupted
// task can resume from its last known step instead of starting over.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/filelock"
)

// Checkpoint is a durable snapshot of one task's progress. Exactly one
// checkpoint exists per task at a time; it is overwritten before each
// attempt and deleted on success.
type Checkpoint struct {
	TaskID        string            `json:"task_id"`
	CurrentStep   string            `json:"current_step"`
	AttemptNumber int               `json:"attempt_number"`
	Data          map[string]string `json:"data,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Store manages checkpoint files under a single directory, one file per
// task. Concurrent tasks never contend on the same file as long as task IDs
// are unique, so the mutex only guards the in-memory map.
type Store struct {
	dir     string
	mu      sync.Mutex
	current map[string]*Checkpoint
	clock   func() time.Time
}

// NewStore creates a Store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		current: make(map[string]*Checkpoint),
		clock:   time.Now,
	}
}

// Create writes a checkpoint for taskID, replacing any existing checkpoint
// for that task. A write failure is returned to the caller: silently losing
// checkpoint data would corrupt resumability.
func (s *Store) Create(taskID, step string, attemptNumber int, data map[string]string) (*Checkpoint, error) {
	if taskID == "" {
		return nil, fmt.Errorf("checkpoint requires a task id")
	}

	cp := &Checkpoint{
		TaskID:        taskID,
		CurrentStep:   step,
		AttemptNumber: attemptNumber,
		Data:          data,
		Timestamp:     s.clock(),
	}

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint for task %s: %w", taskID, err)
	}

	if err := filelock.LockAndWrite(s.path(taskID), raw); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint for task %s: %w", taskID, err)
	}

	s.mu.Lock()
	s.current[taskID] = cp
	s.mu.Unlock()

	return cp, nil
}

// Load reads the persisted checkpoint for taskID. Returns nil (not an
// error) when no checkpoint exists or the file cannot be parsed: a missing
// or corrupt checkpoint just means the task starts fresh.
func (s *Store) Load(taskID string) (*Checkpoint, error) {
	raw, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint for task %s: %w", taskID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Clear deletes the persisted checkpoint for taskID and drops the in-memory
// reference. Clearing a task with no checkpoint is not an error.
func (s *Store) Clear(taskID string) error {
	if err := os.Remove(s.path(taskID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint for task %s: %w", taskID, err)
	}

	s.mu.Lock()
	delete(s.current, taskID)
	s.mu.Unlock()

	return nil
}

// Current returns the in-memory checkpoint reference for taskID, or nil if
// this store has not written one. Used for introspection; the durable file
// is the source of truth across processes.
func (s *Store) Current(taskID string) *Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[taskID]
}

// List returns the task IDs that currently have a persisted checkpoint.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}

func (s *Store) path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}
