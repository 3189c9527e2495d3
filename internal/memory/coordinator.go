// Package memory implements the three-tier NPC memory engine: a bounded
// in-process recent queue, a durable staging buffer, and a persistent
// vector index, orchestrated by a Coordinator (spec §2, §4).
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CanopyHQ/loreweave/internal/idgen"
)

// Coordinator is the only component with knowledge of all three tiers
// (spec §4.E). It serializes writes per character (spec §5) with a
// map of mutexes created on demand. Entries are never removed from the
// map, even on clear: a mutex can be handed out to one caller and not
// yet locked when a second caller looks it up, so there is no safe
// point at which "nobody is using this lock" can be observed from
// outside the lock itself. This mirrors
// becomeliminal-nim-go-sdk/memory/store/chromem/chromem.go's
// getOrCreateCollection, which never deletes from its collections map
// either.
type Coordinator struct {
	cfg    Config
	db     *sql.DB
	engine *Engine
	recent *recentTier
	buffer *bufferTier
	index  *vecIndex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Coordinator following the startup sequence of spec
// §4.F: construct vector index client → construct recent tier → restore
// recent from disk → construct buffer tier → optionally warm up
// embeddings.
func New(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.VectorStoreDir, 0o755); err != nil {
		return nil, errStorage("create vector store directory", err)
	}
	dbPath := filepath.Join(cfg.VectorStoreDir, "vectors.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, errStorage("open vector store", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS characters (name TEXT PRIMARY KEY, last_seen TEXT)`); err != nil {
		db.Close()
		return nil, errStorage("create characters table", err)
	}

	engine := NewEngine(cfg)

	index, err := newVecIndex(db, engine.Dimensions())
	if err != nil {
		db.Close()
		return nil, errStorage("initialize vector index", err)
	}

	recent := newRecentTier(cfg.RecentCapacity, cfg.RecentSnapshotPath)
	if err := recent.RestoreFromDisk(); err != nil {
		db.Close()
		return nil, err
	}

	buffer := newBufferTier(cfg.BufferDir, cfg.BufferThreshold, cfg.MaxEmbedBatch, engine, index)

	c := &Coordinator{
		cfg:    cfg,
		db:     db,
		engine: engine,
		recent: recent,
		buffer: buffer,
		index:  index,
		locks:  make(map[string]*sync.Mutex),
	}

	if cfg.PreloadEmbeddings {
		// A failed warmup leaves the engine in `failed`; add()/get_recent()
		// still work per spec §7, so this is not a fatal construction error.
		_ = engine.Warmup()
	}

	return c, nil
}

// Close runs the shutdown sequence: snapshot the recent tier, then close
// the vector store (buffer files are already durable on every write).
func (c *Coordinator) Close() error {
	if err := c.recent.SnapshotToDisk(); err != nil {
		return err
	}
	return c.db.Close()
}

func (c *Coordinator) lockFor(character string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	m, ok := c.locks[character]
	if !ok {
		m = &sync.Mutex{}
		c.locks[character] = m
	}
	return m
}

func (c *Coordinator) touchCharacter(character string) {
	_, _ = c.db.Exec(
		`INSERT INTO characters (name, last_seen) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET last_seen=excluded.last_seen`,
		character, time.Now().Format(time.RFC3339Nano),
	)
}

func (c *Coordinator) forgetCharacter(character string) {
	_, _ = c.db.Exec(`DELETE FROM characters WHERE name = ?`, character)
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errEmptyContent("content must not be empty or whitespace-only")
	}
	return nil
}

func validateMetadata(metadata map[string]any) error {
	if metadata == nil {
		return nil
	}
	if _, err := json.Marshal(metadata); err != nil {
		return errValidation(fmt.Sprintf("metadata is not JSON-serializable: %v", err))
	}
	return nil
}

// Add builds a new entry, appends it to the recent tier, and — if that
// eviction happened — forwards the evicted entry into the buffer tier
// (spec §4.E add, steps 1–4).
func (c *Coordinator) Add(ctx context.Context, character, content string, metadata map[string]any) (*AddResult, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if err := validateMetadata(metadata); err != nil {
		return nil, err
	}

	entry := Entry{
		ID:        idgen.New(),
		Character: character,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	return c.addEntry(character, entry)
}

// addEntry is the shared core of Add and Import: Import may override the
// generated timestamp (spec §4.E export/import).
func (c *Coordinator) addEntry(character string, entry Entry) (*AddResult, error) {
	lock := c.lockFor(character)
	lock.Lock()
	defer lock.Unlock()

	c.touchCharacter(character)

	result := &AddResult{ID: entry.ID, StoredIn: LocationRecent}
	evicted := c.recent.Add(character, entry)
	if evicted != nil {
		result.EvictedToBuffer = true
		bufRes, err := c.buffer.Add(character, *evicted)
		if err != nil {
			return nil, err
		}
		result.BufferAutoEmbedded = bufRes.Embedded
	}
	return result, nil
}

// GetRecent passes through to the recent tier (spec §4.E get_recent).
func (c *Coordinator) GetRecent(ctx context.Context, character string) []Entry {
	return c.recent.Get(character)
}

// Search embeds query_text and queries the vector index (spec §4.E
// search). If the character's collection does not exist or is empty, the
// result is an empty slice, not an error.
func (c *Coordinator) Search(ctx context.Context, character, queryText string, k int) ([]Scored, error) {
	if k <= 0 {
		k = c.cfg.DefaultSearchK
	}
	vector, err := c.engine.EmbedOne(queryText)
	if err != nil {
		return nil, err
	}
	return c.index.Query(character, vector, k)
}

// GetContext fetches recent unconditionally and, if query_text is given,
// also fetches relevant results. The two sets are independent and may
// overlap by id; per spec §9's open-question resolution, deduplication is
// left to callers.
func (c *Coordinator) GetContext(ctx context.Context, character, queryText string, k int) (*ContextResult, error) {
	result := &ContextResult{Recent: c.GetRecent(ctx, character)}
	if strings.TrimSpace(queryText) != "" {
		relevant, err := c.Search(ctx, character, queryText, k)
		if err != nil {
			return nil, err
		}
		result.Relevant = relevant
	}
	return result, nil
}

// Update probes recent, then buffer, then the vector index, performing the
// update wherever the id is found (spec §4.E update).
func (c *Coordinator) Update(ctx context.Context, character, id, content string, metadata map[string]any) (Location, error) {
	if err := validateContent(content); err != nil {
		return LocationNone, err
	}
	if err := validateMetadata(metadata); err != nil {
		return LocationNone, err
	}

	lock := c.lockFor(character)
	lock.Lock()
	defer lock.Unlock()

	if c.recent.Update(character, id, content, metadata) {
		return LocationRecent, nil
	}
	if ok, err := c.buffer.Update(character, id, content, metadata); err != nil {
		return LocationNone, err
	} else if ok {
		return LocationBuffer, nil
	}

	vector, err := c.engine.EmbedOne(content)
	if err != nil {
		return LocationNone, err
	}
	ok, err := c.index.Update(character, id, content, metadata, vector)
	if err != nil {
		return LocationNone, err
	}
	if ok {
		return LocationLongterm, nil
	}
	return LocationNone, errNotFound(fmt.Sprintf("memory %q not found for character %q", id, character))
}

// Delete probes the same three tiers in the same order as Update (spec
// §4.E delete).
func (c *Coordinator) Delete(ctx context.Context, character, id string) (Location, error) {
	lock := c.lockFor(character)
	lock.Lock()
	defer lock.Unlock()

	if c.recent.Delete(character, id) {
		return LocationRecent, nil
	}
	if ok, err := c.buffer.Delete(character, id); err != nil {
		return LocationNone, err
	} else if ok {
		return LocationBuffer, nil
	}
	if ok, err := c.index.Delete(character, id); err != nil {
		return LocationNone, err
	} else if ok {
		return LocationLongterm, nil
	}
	return LocationNone, errNotFound(fmt.Sprintf("memory %q not found for character %q", id, character))
}

// Clear destroys all three tiers for character, leaving no orphan state
// (spec §4.E clear, invariant 5). The character's lock entry itself is
// kept, not reclaimed — see the Coordinator doc comment — so a write
// racing this call is either fully serialized before it or fully after
// it, never interleaved with it.
func (c *Coordinator) Clear(ctx context.Context, character string) (*ClearResult, error) {
	lock := c.lockFor(character)
	lock.Lock()
	defer lock.Unlock()

	result := &ClearResult{}
	result.RecentDeleted = c.recent.Clear(character)

	bufferDeleted, err := c.buffer.Clear(character)
	if err != nil {
		return nil, err
	}
	result.BufferDeleted = bufferDeleted

	longtermDeleted, err := c.index.Clear(character)
	if err != nil {
		return nil, err
	}
	result.LongtermDeleted = longtermDeleted

	c.forgetCharacter(character)

	return result, nil
}

// ForceEmbed delegates to the buffer tier (spec §4.E force_embed).
func (c *Coordinator) ForceEmbed(ctx context.Context, character string) (int, error) {
	lock := c.lockFor(character)
	lock.Lock()
	defer lock.Unlock()
	return c.buffer.ForceEmbed(character)
}

// ListCharacters returns per-character counts across tiers and the last
// insert timestamp (spec §4.E list_characters).
func (c *Coordinator) ListCharacters(ctx context.Context) ([]CharacterSummary, error) {
	rows, err := c.db.Query(`SELECT name, last_seen FROM characters ORDER BY name`)
	if err != nil {
		return nil, errStorage("list characters", err)
	}
	defer rows.Close()

	var out []CharacterSummary
	for rows.Next() {
		var name, lastSeen string
		if err := rows.Scan(&name, &lastSeen); err != nil {
			continue
		}
		summary := CharacterSummary{Character: name}
		summary.LastActivity, _ = time.Parse(time.RFC3339Nano, lastSeen)
		summary.RecentCount = len(c.recent.Get(name))
		if contents, err := c.buffer.Contents(name); err == nil {
			summary.BufferCount = len(contents)
		}
		if count, err := c.index.Count(name); err == nil {
			summary.VectorCount = count
		}
		out = append(out, summary)
	}
	return out, nil
}

// Export produces a self-describing list of character's memories,
// annotated by the tier that currently owns each one (spec §4.E export).
func (c *Coordinator) Export(ctx context.Context, character string) ([]WithLocation, error) {
	var out []WithLocation
	for _, e := range c.recent.Get(character) {
		out = append(out, WithLocation{Entry: e, Location: LocationRecent})
	}
	buffered, err := c.buffer.Contents(character)
	if err != nil {
		return nil, err
	}
	for _, e := range buffered {
		out = append(out, WithLocation{Entry: e, Location: LocationBuffer})
	}
	longterm, err := c.index.GetAll(character)
	if err != nil {
		return nil, err
	}
	for _, e := range longterm {
		out = append(out, WithLocation{Entry: e, Location: LocationLongterm})
	}
	return out, nil
}

// Import treats each item as a fresh add, so entries flow through the
// recent tier and may trigger evictions exactly like any other write
// (spec §4.E import). A per-item timestamp, when supplied, overrides the
// generated one. Failures are collected per item rather than aborting the
// batch.
func (c *Coordinator) Import(ctx context.Context, items []ImportItem) (*ImportResult, error) {
	result := &ImportResult{}
	for i, item := range items {
		if err := validateContent(item.Content); err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}
		if err := validateMetadata(item.Metadata); err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}

		ts := item.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		entry := Entry{
			ID:        idgen.New(),
			Character: item.Character,
			Content:   item.Content,
			Timestamp: ts,
			Metadata:  item.Metadata,
		}
		if _, err := c.addEntry(item.Character, entry); err != nil {
			result.Failed = append(result.Failed, ImportFailure{Index: i, Error: err.Error()})
			continue
		}
		result.Imported++
	}
	return result, nil
}
