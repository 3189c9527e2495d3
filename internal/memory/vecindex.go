package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// validCharSegment matches every character that a character id may not
// contribute as-is to a generated SQL identifier (anything outside
// [a-zA-Z0-9_]). Each match is hex-encoded, the same defensive posture the
// teacher applies to generated table names.
var validCharSegment = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func tableSuffix(character string) string {
	return validCharSegment.ReplaceAllStringFunc(character, func(s string) string {
		return fmt.Sprintf("_%x_", s)
	})
}

// collectionName is the deterministic per-character collection name from
// spec §6 ("npc_<char>_longterm or equivalent"). The SQL tables backing the
// collection are not named with it: they are entries_, vecids_ and vecs_
// followed by the same sanitized suffix.
func collectionName(character string) string {
	return "npc_" + tableSuffix(character) + "_longterm"
}

// vecIndex is the persistent Vector Index (spec §4.B): one isolated vec0
// table per character, so that clear(char) is three DROP TABLEs and
// leaves no orphan rows in any shared table — the invariant a single flat
// scoped table (as the teacher's vecindex.go uses) cannot offer as
// directly.
type vecIndex struct {
	db         *sql.DB
	dimensions int
}

func newVecIndex(db *sql.DB, dimensions int) (*vecIndex, error) {
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}
	return &vecIndex{db: db, dimensions: dimensions}, nil
}

func (vi *vecIndex) entriesTable(character string) string { return "entries_" + tableSuffix(character) }
func (vi *vecIndex) idsTable(character string) string     { return "vecids_" + tableSuffix(character) }
func (vi *vecIndex) vecsTable(character string) string    { return "vecs_" + tableSuffix(character) }

// ensureCollection creates the three tables backing one character's
// collection if they don't already exist.
func (vi *vecIndex) ensureCollection(character string) error {
	entries := vi.entriesTable(character)
	ids := vi.idsTable(character)
	vecs := vi.vecsTable(character)

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT,
			timestamp TEXT NOT NULL
		)`, entries),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			vec_id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id TEXT UNIQUE NOT NULL
		)`, ids),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`, vecs, vi.dimensions),
	}
	for _, s := range stmts {
		if _, err := vi.db.Exec(s); err != nil {
			return errStorage("create vector collection", err)
		}
	}
	return nil
}

// Add bulk-inserts entries and their vectors (spec §4.B add). ids must not
// already exist in the collection.
func (vi *vecIndex) Add(character string, entries []Entry, vectors [][]float32) error {
	if len(entries) != len(vectors) {
		return errValidation("entries and vectors length mismatch")
	}
	if len(entries) == 0 {
		return nil
	}
	if err := vi.ensureCollection(character); err != nil {
		return err
	}

	tx, err := vi.db.Begin()
	if err != nil {
		return errStorage("begin transaction", err)
	}
	defer tx.Rollback()

	entriesTable := vi.entriesTable(character)
	idsTable := vi.idsTable(character)
	vecsTable := vi.vecsTable(character)

	for i, e := range entries {
		if len(vectors[i]) != vi.dimensions {
			return errStorage("vector dimension mismatch", fmt.Errorf("got %d want %d", len(vectors[i]), vi.dimensions))
		}
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return errValidation("metadata not JSON-serializable")
		}

		if _, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (id, content, metadata, timestamp) VALUES (?, ?, ?, ?)`, entriesTable),
			e.ID, e.Content, string(metaJSON), e.Timestamp.Format(time.RFC3339Nano),
		); err != nil {
			return errStorage("insert vector collection entry", err)
		}

		res, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (memory_id) VALUES (?)`, idsTable), e.ID)
		if err != nil {
			return errStorage("insert vec id mapping", err)
		}
		vecID, _ := res.LastInsertId()

		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return errStorage("serialize embedding", err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, vecsTable), vecID, blob); err != nil {
			return errStorage("insert embedding", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errStorage("commit vector collection add", err)
	}
	return nil
}

// Has reports whether id is already present in character's collection —
// used by the buffer tier's saga recovery (spec §7/§9) to make the
// buffer→index transition idempotent under retry.
func (vi *vecIndex) Has(character, id string) (bool, error) {
	if !vi.collectionExists(character) {
		return false, nil
	}
	var count int
	err := vi.db.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ?`, vi.entriesTable(character)), id,
	).Scan(&count)
	if err != nil {
		return false, errStorage("probe vector collection", err)
	}
	return count > 0, nil
}

func (vi *vecIndex) collectionExists(character string) bool {
	var name string
	err := vi.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, vi.entriesTable(character)).Scan(&name)
	return err == nil
}

// Query performs a top-k similarity search (spec §4.B query). Distance is
// transformed to score = 1/(1+d); ties break by later timestamp first.
func (vi *vecIndex) Query(character string, queryVector []float32, k int) ([]Scored, error) {
	if !vi.collectionExists(character) {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, errStorage("serialize query vector", err)
	}

	vecsTable := vi.vecsTable(character)
	idsTable := vi.idsTable(character)
	entriesTable := vi.entriesTable(character)

	overfetch := k
	if overfetch < 1 {
		overfetch = 1
	}
	rows, err := vi.db.Query(
		fmt.Sprintf(`SELECT rowid, distance FROM %s WHERE embedding MATCH ? ORDER BY distance LIMIT ?`, vecsTable),
		blob, overfetch,
	)
	if err != nil {
		return nil, errStorage("vector query", err)
	}
	defer rows.Close()

	type hit struct {
		rowID    int64
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rowID, &h.distance); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(hits))
	args := make([]interface{}, len(hits))
	for i, h := range hits {
		placeholders[i] = "?"
		args[i] = h.rowID
	}
	mapRows, err := vi.db.Query(
		fmt.Sprintf(`SELECT vec_id, memory_id FROM %s WHERE vec_id IN (%s)`, idsTable, strings.Join(placeholders, ",")),
		args...,
	)
	if err != nil {
		return nil, errStorage("resolve vector ids", err)
	}
	idOf := make(map[int64]string, len(hits))
	for mapRows.Next() {
		var vecID int64
		var memID string
		if err := mapRows.Scan(&vecID, &memID); err == nil {
			idOf[vecID] = memID
		}
	}
	mapRows.Close()

	results := make([]Scored, 0, len(hits))
	for _, h := range hits {
		memID, ok := idOf[h.rowID]
		if !ok {
			continue
		}
		entry, ok, err := vi.getEntry(entriesTable, memID)
		if err != nil || !ok {
			continue
		}
		results = append(results, Scored{Entry: entry, Score: 1.0 / (1.0 + h.distance)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.Timestamp.After(results[j].Entry.Timestamp)
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (vi *vecIndex) getEntry(entriesTable, id string) (Entry, bool, error) {
	var content, metaJSON, ts string
	err := vi.db.QueryRow(
		fmt.Sprintf(`SELECT content, metadata, timestamp FROM %s WHERE id = ?`, entriesTable), id,
	).Scan(&content, &metaJSON, &ts)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry := Entry{ID: id, Content: content}
	entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &entry.Metadata)
	}
	return entry, true, nil
}

// GetAll returns every entry in character's collection (spec §4.B get_all).
func (vi *vecIndex) GetAll(character string) ([]Entry, error) {
	if !vi.collectionExists(character) {
		return nil, nil
	}
	rows, err := vi.db.Query(fmt.Sprintf(`SELECT id, content, metadata, timestamp FROM %s`, vi.entriesTable(character)))
	if err != nil {
		return nil, errStorage("list vector collection", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var id, content, metaJSON, ts string
		if err := rows.Scan(&id, &content, &metaJSON, &ts); err != nil {
			continue
		}
		e := Entry{ID: id, Character: character, Content: content}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, nil
}

// Update replaces content, metadata and the stored vector atomically (spec
// §4.B update). The caller supplies the vector already embedded from the
// new content.
func (vi *vecIndex) Update(character, id, content string, metadata map[string]any, vector []float32) (bool, error) {
	if !vi.collectionExists(character) {
		return false, nil
	}
	entriesTable := vi.entriesTable(character)
	idsTable := vi.idsTable(character)
	vecsTable := vi.vecsTable(character)

	var vecID int64
	err := vi.db.QueryRow(fmt.Sprintf(`SELECT vec_id FROM %s WHERE memory_id = ?`, idsTable), id).Scan(&vecID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errStorage("lookup vec id", err)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return false, errValidation("metadata not JSON-serializable")
	}

	tx, err := vi.db.Begin()
	if err != nil {
		return false, errStorage("begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		fmt.Sprintf(`UPDATE %s SET content = ?, metadata = ? WHERE id = ?`, entriesTable),
		content, string(metaJSON), id,
	); err != nil {
		return false, errStorage("update vector collection entry", err)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return false, errStorage("serialize embedding", err)
	}
	// vec0 offers no UPSERT; delete then reinsert under the same rowid.
	if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecsTable), vecID); err != nil {
		return false, errStorage("clear old embedding", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, vecsTable), vecID, blob); err != nil {
		return false, errStorage("insert updated embedding", err)
	}

	if err := tx.Commit(); err != nil {
		return false, errStorage("commit vector collection update", err)
	}
	return true, nil
}

// Delete removes one entry (spec §4.B delete).
func (vi *vecIndex) Delete(character, id string) (bool, error) {
	if !vi.collectionExists(character) {
		return false, nil
	}
	idsTable := vi.idsTable(character)
	vecsTable := vi.vecsTable(character)
	entriesTable := vi.entriesTable(character)

	var vecID int64
	err := vi.db.QueryRow(fmt.Sprintf(`SELECT vec_id FROM %s WHERE memory_id = ?`, idsTable), id).Scan(&vecID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errStorage("lookup vec id", err)
	}

	if _, err := vi.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecsTable), vecID); err != nil {
		return false, errStorage("delete embedding", err)
	}
	if _, err := vi.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE vec_id = ?`, idsTable), vecID); err != nil {
		return false, errStorage("delete vec id mapping", err)
	}
	if _, err := vi.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, entriesTable), id); err != nil {
		return false, errStorage("delete vector collection entry", err)
	}
	return true, nil
}

// Clear drops the entire collection for character (spec §4.B clear),
// satisfying invariant 5 ("no orphan vectors") by construction.
func (vi *vecIndex) Clear(character string) (int, error) {
	if !vi.collectionExists(character) {
		return 0, nil
	}
	var count int
	vi.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, vi.entriesTable(character))).Scan(&count)

	for _, table := range []string{vi.vecsTable(character), vi.idsTable(character), vi.entriesTable(character)} {
		if _, err := vi.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return count, errStorage("drop vector collection table", err)
		}
	}
	return count, nil
}

// Count returns the number of entries in character's collection.
func (vi *vecIndex) Count(character string) (int, error) {
	if !vi.collectionExists(character) {
		return 0, nil
	}
	var count int
	err := vi.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, vi.entriesTable(character))).Scan(&count)
	if err != nil {
		return 0, errStorage("count vector collection", err)
	}
	return count, nil
}
