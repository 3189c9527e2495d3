package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, recentCapacity, bufferThreshold int) *Coordinator {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		RecentCapacity:     recentCapacity,
		BufferThreshold:    bufferThreshold,
		DefaultSearchK:     3,
		EmbeddingBackend:   "cpu",
		PreloadEmbeddings:  false,
		MaxEmbedBatch:      50,
		RecentSnapshotPath: filepath.Join(dir, "recent.json"),
		BufferDir:          filepath.Join(dir, "buffer"),
		VectorStoreDir:     filepath.Join(dir, "vectors"),
	}
	coord, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { coord.Close() })
	return coord
}

func TestCoordinatorAddRejectsEmptyContent(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	_, err := coord.Add(context.Background(), "elenora", "   ", nil)
	require.Error(t, err)
	assert.Equal(t, KindEmptyContent, KindOf(err))
}

// TestFIFOEviction is spec §8 scenario 1: with R=5, adding a 6th memory
// evicts the 1st into the buffer tier.
func TestFIFOEviction(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()

	var firstID string
	for i := 0; i < 5; i++ {
		result, err := coord.Add(ctx, "elenora", "memory "+string(rune('a'+i)), nil)
		require.NoError(t, err)
		if i == 0 {
			firstID = result.ID
		}
		assert.False(t, result.EvictedToBuffer)
	}

	result, err := coord.Add(ctx, "elenora", "memory f", nil)
	require.NoError(t, err)
	assert.True(t, result.EvictedToBuffer)

	recent := coord.GetRecent(ctx, "elenora")
	require.Len(t, recent, 5)
	for _, e := range recent {
		assert.NotEqual(t, firstID, e.ID)
	}

	buffered, err := coord.buffer.Contents("elenora")
	require.NoError(t, err)
	require.Len(t, buffered, 1)
	assert.Equal(t, firstID, buffered[0].ID)
}

// TestAutoEmbedAtThreshold is spec §8 scenario 2: with R=5, B=10, the 15th
// add (5 recent + 10 evicted into buffer) triggers an automatic embed.
func TestAutoEmbedAtThreshold(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()

	var lastResult *AddResult
	for i := 0; i < 15; i++ {
		result, err := coord.Add(ctx, "elenora", "memory "+string(rune('a'+i%26)), nil)
		require.NoError(t, err)
		lastResult = result
	}

	require.True(t, lastResult.EvictedToBuffer)
	assert.True(t, lastResult.BufferAutoEmbedded, "the 10th buffered entry must trigger an auto-embed")

	count, err := coord.index.Count("elenora")
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	buffered, err := coord.buffer.Contents("elenora")
	require.NoError(t, err)
	assert.Empty(t, buffered)
}

// TestSearchFindsEmbeddedItem is spec §8 scenario 3.
func TestSearchFindsEmbeddedItem(t *testing.T) {
	coord := newTestCoordinator(t, 2, 2)
	ctx := context.Background()

	_, err := coord.Add(ctx, "elenora", "the player returned the stolen amulet", nil)
	require.NoError(t, err)
	_, err = coord.Add(ctx, "elenora", "the tavern serves ale until midnight", nil)
	require.NoError(t, err)
	_, err = coord.Add(ctx, "elenora", "trust with the guard was restored", nil)
	require.NoError(t, err)
	_, err = coord.Add(ctx, "elenora", "the weather turned cold overnight", nil)
	require.NoError(t, err)

	count, err := coord.index.Count("elenora")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	results, err := coord.Search(ctx, "elenora", "the amulet was returned to the player", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Entry.Content, "amulet")
}

// TestClearIsTotal is spec §8 scenario 4.
func TestClearIsTotal(t *testing.T) {
	coord := newTestCoordinator(t, 2, 2)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := coord.Add(ctx, "elenora", "memory "+string(rune('a'+i)), nil)
		require.NoError(t, err)
	}

	result, err := coord.Clear(ctx, "elenora")
	require.NoError(t, err)
	assert.Greater(t, result.RecentDeleted+result.BufferDeleted+result.LongtermDeleted, 0)

	assert.Empty(t, coord.GetRecent(ctx, "elenora"))
	buffered, err := coord.buffer.Contents("elenora")
	require.NoError(t, err)
	assert.Empty(t, buffered)
	count, err := coord.index.Count("elenora")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.False(t, coord.index.collectionExists("elenora"))
}

// TestUpdateCrossesTiers is spec §8 scenario 5: update must find and modify
// an entry no matter which tier currently owns it.
func TestUpdateCrossesTiers(t *testing.T) {
	coord := newTestCoordinator(t, 1, 1)
	ctx := context.Background()

	add, err := coord.Add(ctx, "elenora", "original content", nil)
	require.NoError(t, err)

	// Evicts into the buffer and immediately embeds (threshold=1).
	_, err = coord.Add(ctx, "elenora", "second memory", nil)
	require.NoError(t, err)

	count, err := coord.index.Count("elenora")
	require.NoError(t, err)
	require.Equal(t, 1, count, "the first entry should have flowed all the way to long-term storage")

	loc, err := coord.Update(ctx, "elenora", add.ID, "revised content", map[string]any{"revised": true})
	require.NoError(t, err)
	assert.Equal(t, LocationLongterm, loc)

	all, err := coord.index.GetAll("elenora")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "revised content", all[0].Content)
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	_, err := coord.Update(context.Background(), "elenora", "missing", "x", nil)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// TestRestartPersistence is spec §8 scenario 6's simplest form: a fresh
// Coordinator over the same directories must recover the recent tier's
// exact contents in order.
func TestRestartPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		RecentCapacity:     3,
		BufferThreshold:    2,
		DefaultSearchK:     3,
		EmbeddingBackend:   "cpu",
		RecentSnapshotPath: filepath.Join(dir, "recent.json"),
		BufferDir:          filepath.Join(dir, "buffer"),
		VectorStoreDir:     filepath.Join(dir, "vectors"),
	}
	ctx := context.Background()

	coord1, err := New(cfg)
	require.NoError(t, err)
	_, err = coord1.Add(ctx, "elenora", "first", nil)
	require.NoError(t, err)
	_, err = coord1.Add(ctx, "elenora", "second", nil)
	require.NoError(t, err)
	require.NoError(t, coord1.Close())

	coord2, err := New(cfg)
	require.NoError(t, err)
	defer coord2.Close()

	recent := coord2.GetRecent(ctx, "elenora")
	require.Len(t, recent, 2)
	assert.Equal(t, "first", recent[0].Content)
	assert.Equal(t, "second", recent[1].Content)
}

// TestRestartPersistenceAcrossCharactersAndLongterm is spec §8 scenario 6 in
// full: add 3 entries to one character and 12 to a second, restart the
// Coordinator over the same directories, then expect get_recent for the
// first character to come back in order, get_recent for the second to hold
// only its last 5, and a search on the second character against one of its
// first 7 contents — which crossed into the buffer and got auto-embedded
// before the restart — to still find that entry by id.
func TestRestartPersistenceAcrossCharactersAndLongterm(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		RecentCapacity:     5,
		BufferThreshold:    7,
		DefaultSearchK:     3,
		EmbeddingBackend:   "cpu",
		RecentSnapshotPath: filepath.Join(dir, "recent.json"),
		BufferDir:          filepath.Join(dir, "buffer"),
		VectorStoreDir:     filepath.Join(dir, "vectors"),
	}
	ctx := context.Background()

	coord1, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := coord1.Add(ctx, "c1", fmt.Sprintf("c1 memory %d", i), nil)
		require.NoError(t, err)
	}

	var thirdID string
	var thirdContent string
	for i := 0; i < 12; i++ {
		content := fmt.Sprintf("c2 memory %d about the amulet", i)
		result, err := coord1.Add(ctx, "c2", content, nil)
		require.NoError(t, err)
		if i == 3 {
			thirdID = result.ID
			thirdContent = content
		}
	}

	// With R=5, B=7: the 12 adds to c2 evict 7 into the buffer, which hits
	// the threshold and auto-embeds all 7 before the 12th add returns.
	preRestartCount, err := coord1.index.Count("c2")
	require.NoError(t, err)
	require.Equal(t, 7, preRestartCount, "the first 7 evicted c2 entries must be embedded before restart")

	require.NoError(t, coord1.Close())

	coord2, err := New(cfg)
	require.NoError(t, err)
	defer coord2.Close()

	c1Recent := coord2.GetRecent(ctx, "c1")
	require.Len(t, c1Recent, 3)
	assert.Equal(t, "c1 memory 0", c1Recent[0].Content)
	assert.Equal(t, "c1 memory 1", c1Recent[1].Content)
	assert.Equal(t, "c1 memory 2", c1Recent[2].Content)

	c2Recent := coord2.GetRecent(ctx, "c2")
	require.Len(t, c2Recent, 5)
	assert.Equal(t, "c2 memory 7 about the amulet", c2Recent[0].Content)
	assert.Equal(t, "c2 memory 11 about the amulet", c2Recent[4].Content)

	results, err := coord2.Search(ctx, "c2", thirdContent, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, thirdID, results[0].Entry.ID, "search after restart must still find a pre-restart embedded entry")
}

func TestListCharacters(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()

	_, err := coord.Add(ctx, "elenora", "hello", nil)
	require.NoError(t, err)
	_, err = coord.Add(ctx, "bram", "hi", nil)
	require.NoError(t, err)

	summaries, err := coord.ListCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byName := make(map[string]CharacterSummary, len(summaries))
	for _, s := range summaries {
		byName[s.Character] = s
	}
	assert.Equal(t, 1, byName["elenora"].RecentCount)
	assert.Equal(t, 1, byName["bram"].RecentCount)
}

func TestClearForgetsCharacterFromListing(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()

	_, err := coord.Add(ctx, "elenora", "hello", nil)
	require.NoError(t, err)
	_, err = coord.Clear(ctx, "elenora")
	require.NoError(t, err)

	summaries, err := coord.ListCharacters(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestCoordinator(t, 2, 2)
	dst := newTestCoordinator(t, 2, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := src.Add(ctx, "elenora", "memory "+string(rune('a'+i)), nil)
		require.NoError(t, err)
	}

	exported, err := src.Export(ctx, "elenora")
	require.NoError(t, err)
	require.Len(t, exported, 5)

	items := make([]ImportItem, len(exported))
	for i, wl := range exported {
		items[i] = ImportItem{Character: wl.Entry.Character, Content: wl.Entry.Content, Metadata: wl.Entry.Metadata, Timestamp: wl.Entry.Timestamp}
	}

	result, err := dst.Import(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Imported)
	assert.Empty(t, result.Failed)
}

func TestGetContextWithoutQueryOmitsRelevant(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()
	_, err := coord.Add(ctx, "elenora", "hello", nil)
	require.NoError(t, err)

	result, err := coord.GetContext(ctx, "elenora", "", 3)
	require.NoError(t, err)
	assert.Len(t, result.Recent, 1)
	assert.Empty(t, result.Relevant)
}

// TestCoordinatorConcurrentWritesSerializeWithClear hammers Add/Update/Delete
// against Clear on the same character from many goroutines at once. It exists
// to catch a lock-map reclamation race: reclaiming a character's lock entry
// after Clear releases it lets a concurrent caller that already holds the old
// mutex run alongside a later caller that mints a fresh one, so nothing here
// may panic or trip -race, and every operation must return without error
// (a missing id from Update/Delete is not an error — it's an expected outcome
// when Clear or another goroutine got there first).
func TestCoordinatorConcurrentWritesSerializeWithClear(t *testing.T) {
	coord := newTestCoordinator(t, 5, 10)
	ctx := context.Background()
	const character = "elenora"
	const workers = 8
	const roundsPerWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, workers*roundsPerWorker*3)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for r := 0; r < roundsPerWorker; r++ {
				content := fmt.Sprintf("worker %d round %d", worker, r)
				result, err := coord.Add(ctx, character, content, nil)
				if err != nil {
					errs <- err
					continue
				}

				if _, err := coord.Update(ctx, character, result.ID, content+" updated", nil); err != nil {
					if KindOf(err) != KindNotFound {
						errs <- err
					}
				}

				if _, err := coord.Delete(ctx, character, result.ID); err != nil {
					if KindOf(err) != KindNotFound {
						errs <- err
					}
				}
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := 0; r < roundsPerWorker; r++ {
			if _, err := coord.Clear(ctx, character); err != nil {
				errs <- err
			}
		}
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error from concurrent access: %v", err)
	}
}
