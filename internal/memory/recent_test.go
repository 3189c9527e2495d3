package memory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecentTier(t *testing.T, capacity int) *recentTier {
	t.Helper()
	return newRecentTier(capacity, filepath.Join(t.TempDir(), "recent.json"))
}

func TestRecentTierEvictsOldestAtCapacity(t *testing.T) {
	r := newTestRecentTier(t, 2)

	e1 := r.Add("elenora", Entry{ID: "1", Content: "first"})
	assert.Nil(t, e1)
	e2 := r.Add("elenora", Entry{ID: "2", Content: "second"})
	assert.Nil(t, e2)
	e3 := r.Add("elenora", Entry{ID: "3", Content: "third"})
	require.NotNil(t, e3)
	assert.Equal(t, "1", e3.ID, "oldest entry must be evicted first")

	got := r.Get("elenora")
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestRecentTierPerCharacterIsolation(t *testing.T) {
	r := newTestRecentTier(t, 5)
	r.Add("elenora", Entry{ID: "1"})
	r.Add("bram", Entry{ID: "2"})

	assert.Len(t, r.Get("elenora"), 1)
	assert.Len(t, r.Get("bram"), 1)
	assert.Empty(t, r.Get("unknown"))
}

func TestRecentTierUpdatePreservesPositionAndTimestamp(t *testing.T) {
	r := newTestRecentTier(t, 5)
	ts := time.Now()
	r.Add("elenora", Entry{ID: "1", Content: "old", Timestamp: ts})

	ok := r.Update("elenora", "1", "new", map[string]any{"mood": "glad"})
	assert.True(t, ok)

	got := r.Get("elenora")
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
	assert.Equal(t, ts, got[0].Timestamp)
}

func TestRecentTierUpdateMissingReturnsFalse(t *testing.T) {
	r := newTestRecentTier(t, 5)
	assert.False(t, r.Update("elenora", "missing", "x", nil))
}

func TestRecentTierDelete(t *testing.T) {
	r := newTestRecentTier(t, 5)
	r.Add("elenora", Entry{ID: "1"})
	r.Add("elenora", Entry{ID: "2"})

	assert.True(t, r.Delete("elenora", "1"))
	assert.False(t, r.Delete("elenora", "1"))

	got := r.Get("elenora")
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestRecentTierClear(t *testing.T) {
	r := newTestRecentTier(t, 5)
	r.Add("elenora", Entry{ID: "1"})
	r.Add("elenora", Entry{ID: "2"})

	assert.Equal(t, 2, r.Clear("elenora"))
	assert.Empty(t, r.Get("elenora"))
}

func TestRecentTierSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	r := newRecentTier(3, path)
	r.Add("elenora", Entry{ID: "1", Content: "a"})
	r.Add("elenora", Entry{ID: "2", Content: "b"})

	require.NoError(t, r.SnapshotToDisk())

	r2 := newRecentTier(3, path)
	require.NoError(t, r2.RestoreFromDisk())

	got := r2.Get("elenora")
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestRecentTierRestoreFromMissingFileIsEmpty(t *testing.T) {
	r := newRecentTier(3, filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, r.RestoreFromDisk())
	assert.Empty(t, r.Get("elenora"))
}

func TestRecentTierRestoreTruncatesOverCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.json")
	r := newRecentTier(5, path)
	for i := 0; i < 5; i++ {
		r.Add("elenora", Entry{ID: string(rune('a' + i))})
	}
	require.NoError(t, r.SnapshotToDisk())

	r2 := newRecentTier(2, path)
	require.NoError(t, r2.RestoreFromDisk())

	got := r2.Get("elenora")
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "e", got[1].ID)
}
