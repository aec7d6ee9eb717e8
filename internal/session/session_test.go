package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	snap := &Snapshot{
		History: []string{"main", "search", "episodes"},
		MediaID: 1001,
		Episode: "4",
	}
	require.NoError(t, store.Save(DefaultName, snap))

	loaded, err := store.Load(DefaultName)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, []string{"main", "search", "episodes"}, loaded.History)
	assert.Equal(t, 1001, loaded.MediaID)
	assert.Equal(t, "4", loaded.Episode)
	assert.Equal(t, "1.0", loaded.Version)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestLoadMissingSnapshotIsNil(t *testing.T) {
	store := NewStore(t.TempDir())

	snap, err := store.Load(DefaultName)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSaveReplacesExistingSnapshot(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(CrashName, &Snapshot{History: []string{"a"}}))
	require.NoError(t, store.Save(CrashName, &Snapshot{History: []string{"b", "c"}}))

	loaded, err := store.Load(CrashName)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, loaded.History)
}

func TestMostRecentPicksNewestTimestamp(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	older := "session_20250101_120000_000001"
	newer := "session_20250601_080000_000002"
	require.NoError(t, store.Save(older, &Snapshot{History: []string{"old"}}))
	require.NoError(t, store.Save(newer, &Snapshot{History: []string{"new"}}))
	// Named snapshots never win the timestamp scan
	require.NoError(t, store.Save(DefaultName, &Snapshot{History: []string{"default"}}))

	name, err := store.MostRecent()
	require.NoError(t, err)
	assert.Equal(t, newer, name)
}

func TestMostRecentEmptyDirectory(t *testing.T) {
	store := NewStore(t.TempDir())

	name, err := store.MostRecent()
	require.NoError(t, err)
	assert.Empty(t, name)

	name, err = NewStore(filepath.Join(t.TempDir(), "does-not-exist")).MostRecent()
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestSaveTimestampedEncodesCurrentTime(t *testing.T) {
	store := NewStore(t.TempDir())

	name, err := store.SaveTimestamped(&Snapshot{History: []string{"x"}})
	require.NoError(t, err)
	assert.Regexp(t, `^session_\d{8}_\d{6}_\d{6}$`, name)

	parsed, err := time.Parse("20060102_150405", name[8:23])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), parsed, time.Minute)

	recent, err := store.MostRecent()
	require.NoError(t, err)
	assert.Equal(t, name, recent)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Save(DefaultName, &Snapshot{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultName}, names)
}
