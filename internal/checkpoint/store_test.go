package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIntoFreshDirectory(t *testing.T) {
	// The store directory is created lazily on the first write; a brand new
	// project must not need a pre-existing checkpoints directory.
	store := NewStore(filepath.Join(t.TempDir(), "checkpoints"))

	_, err := store.Create("task-1", "generate", 1, nil)
	require.NoError(t, err)

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "task-1", loaded.TaskID)
}

func TestCreateLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	created, err := store.Create("task-1", "code_generation", 2, map[string]string{"branch": "task/1"})
	require.NoError(t, err)
	require.NotNil(t, created)

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "task-1", loaded.TaskID)
	assert.Equal(t, "code_generation", loaded.CurrentStep)
	assert.Equal(t, 2, loaded.AttemptNumber)
	assert.Equal(t, "task/1", loaded.Data["branch"])
	assert.False(t, loaded.Timestamp.IsZero())
}

func TestCreateOverwritesPrevious(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Create("task-1", "code_generation", 1, nil)
	require.NoError(t, err)
	_, err = store.Create("task-1", "verification:lint", 3, nil)
	require.NoError(t, err)

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "verification:lint", loaded.CurrentStep)
	assert.Equal(t, 3, loaded.AttemptNumber)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())

	loaded, err := store.Load("no-such-task")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "task-1.json"), []byte("{not json"), 0644))

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestClear(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Create("task-1", "verification", 1, nil)
	require.NoError(t, err)
	require.NotNil(t, store.Current("task-1"))

	require.NoError(t, store.Clear("task-1"))

	loaded, err := store.Load("task-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Nil(t, store.Current("task-1"))

	// Clearing again is a no-op.
	assert.NoError(t, store.Clear("task-1"))
}

func TestCurrentTracksLatestWrite(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Create("task-1", "code_generation", 1, nil)
	require.NoError(t, err)

	cur := store.Current("task-1")
	require.NotNil(t, cur)
	assert.Equal(t, 1, cur.AttemptNumber)

	_, err = store.Create("task-1", "code_generation", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Current("task-1").AttemptNumber)
}

func TestTasksAreIsolated(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Create("task-a", "verification", 1, nil)
	require.NoError(t, err)
	_, err = store.Create("task-b", "code_generation", 4, nil)
	require.NoError(t, err)

	require.NoError(t, store.Clear("task-a"))

	loaded, err := store.Load("task-b")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 4, loaded.AttemptNumber)
}

func TestList(t *testing.T) {
	store := NewStore(t.TempDir())

	ids, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = store.Create("task-a", "verification", 1, nil)
	require.NoError(t, err)
	_, err = store.Create("task-b", "verification", 1, nil)
	require.NoError(t, err)

	ids, err = store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task-a", "task-b"}, ids)
}
