package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// bufferAddResult is the {appended, embedded} result of Buffer.Add
// (spec §4.D) — an explicit signal instead of the buffer-length-diff
// technique original_source's memory_manager.py uses to detect that an
// auto-embed happened.
type bufferAddResult struct {
	Appended bool
	Embedded bool
	Count    int // number of entries embedded, when Embedded is true
}

// bufferFile is the on-disk shape for one character's buffer: a JSON
// array plus bookkeeping, grounded on original_source's
// longterm_memory.py buffer format.
type bufferFile struct {
	Memories    []Entry   `json:"memories"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}

// bufferTier is the durable per-character staging list of spec §4.D:
// append-only until the embed trigger, backed by one JSON file per
// character under dir.
type bufferTier struct {
	mu        sync.Mutex
	dir       string
	threshold int
	maxBatch  int
	engine    *Engine
	index     *vecIndex
}

func newBufferTier(dir string, threshold, maxBatch int, engine *Engine, index *vecIndex) *bufferTier {
	return &bufferTier{dir: dir, threshold: threshold, maxBatch: maxBatch, engine: engine, index: index}
}

func (b *bufferTier) path(character string) string {
	return filepath.Join(b.dir, tableSuffix(character)+".json")
}

func (b *bufferTier) load(character string) (bufferFile, error) {
	data, err := os.ReadFile(b.path(character))
	if os.IsNotExist(err) {
		return bufferFile{}, nil
	}
	if err != nil {
		return bufferFile{}, errStorage("read buffer file", err)
	}
	var f bufferFile
	if err := json.Unmarshal(data, &f); err != nil {
		return bufferFile{}, nil
	}
	return f, nil
}

func (b *bufferTier) save(character string, f bufferFile) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return errStorage("create buffer directory", err)
	}
	f.Count = len(f.Memories)
	f.LastUpdated = time.Now()
	data, err := json.Marshal(f)
	if err != nil {
		return errStorage("marshal buffer file", err)
	}
	if err := os.WriteFile(b.path(character), data, 0o644); err != nil {
		return errStorage("write buffer file", err)
	}
	return nil
}

// Add appends entry to character's buffer file, then triggers an embed
// step if the file has reached the threshold. Per spec §4.D, steps 1–4 of
// the embed step must appear atomic with respect to concurrent adds on the
// same character; the coordinator serializes per-character access (spec
// §5), so bufferTier itself only needs to guard its own file I/O.
func (b *bufferTier) Add(character string, entry Entry) (bufferAddResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.load(character)
	if err != nil {
		return bufferAddResult{}, err
	}
	f.Memories = append(f.Memories, entry)
	if err := b.save(character, f); err != nil {
		return bufferAddResult{}, err
	}

	if len(f.Memories) < b.threshold {
		return bufferAddResult{Appended: true}, nil
	}

	count, err := b.embedLocked(character)
	if err != nil {
		// Embed failed: the buffer file remains intact per spec §4.D — the
		// add itself still succeeded.
		return bufferAddResult{Appended: true}, nil
	}
	return bufferAddResult{Appended: true, Embedded: count > 0, Count: count}, nil
}

// ForceEmbed embeds regardless of size, returning the count embedded.
func (b *bufferTier) ForceEmbed(character string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embedLocked(character)
}

// embedLocked performs the embed step (spec §4.D): read all buffered
// entries, embed_many them in chunks no larger than maxBatch, add each
// chunk to the vector index, then truncate. It is expressed as a saga per
// spec §9: on failure before the vector-index add commits, the buffer file
// is untouched; on retry, ids already present in the target collection are
// skipped, so the transition is idempotent under a crash between "vectors
// written" and "buffer truncated".
func (b *bufferTier) embedLocked(character string) (int, error) {
	f, err := b.load(character)
	if err != nil {
		return 0, err
	}
	if len(f.Memories) == 0 {
		return 0, nil
	}

	pending := make([]Entry, 0, len(f.Memories))
	for _, e := range f.Memories {
		present, err := b.index.Has(character, e.ID)
		if err != nil {
			return 0, err
		}
		if !present {
			pending = append(pending, e)
		}
	}

	batchSize := b.maxBatch
	if batchSize <= 0 {
		batchSize = len(pending)
	}
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		contents := make([]string, len(batch))
		for i, e := range batch {
			contents[i] = e.Content
		}
		vectors, err := b.engine.EmbedMany(contents)
		if err != nil {
			return 0, err
		}
		if err := b.index.Add(character, batch, vectors); err != nil {
			return 0, err
		}
	}

	if err := os.Remove(b.path(character)); err != nil && !os.IsNotExist(err) {
		return 0, errStorage("truncate buffer file", err)
	}
	return len(f.Memories), nil
}

// Contents returns character's buffered entries, in arrival order.
func (b *bufferTier) Contents(character string) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.load(character)
	if err != nil {
		return nil, err
	}
	return f.Memories, nil
}

// Update replaces content and metadata for id, preserving its position.
func (b *bufferTier) Update(character, id, content string, metadata map[string]any) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.load(character)
	if err != nil {
		return false, err
	}
	for i := range f.Memories {
		if f.Memories[i].ID == id {
			f.Memories[i].Content = content
			f.Memories[i].Metadata = metadata
			return true, b.save(character, f)
		}
	}
	return false, nil
}

// Delete removes id from character's buffer.
func (b *bufferTier) Delete(character, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.load(character)
	if err != nil {
		return false, err
	}
	for i := range f.Memories {
		if f.Memories[i].ID == id {
			f.Memories = append(f.Memories[:i], f.Memories[i+1:]...)
			return true, b.save(character, f)
		}
	}
	return false, nil
}

// Clear removes character's buffer file entirely, returning the count
// removed.
func (b *bufferTier) Clear(character string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := b.load(character)
	if err != nil {
		return 0, err
	}
	if err := os.Remove(b.path(character)); err != nil && !os.IsNotExist(err) {
		return 0, errStorage("remove buffer file", err)
	}
	return len(f.Memories), nil
}
