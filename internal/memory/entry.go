package memory

import "time"

// Location names the tier currently owning a MemoryEntry.
type Location string

const (
	LocationRecent   Location = "recent"
	LocationBuffer   Location = "buffer"
	LocationLongterm Location = "longterm"
	LocationNone     Location = ""
)

// Entry is one atomic memory belonging to a character. Id, Content and
// Timestamp are immutable once written; only Update may replace Content
// and Metadata, and it preserves Id and Timestamp.
type Entry struct {
	ID        string         `json:"id"`
	Character string         `json:"character"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to a caller without
// exposing internal map storage.
func (e Entry) Clone() Entry {
	if e.Metadata == nil {
		return e
	}
	m := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		m[k] = v
	}
	e.Metadata = m
	return e
}

// Scored pairs an Entry with a similarity score from a vector query.
type Scored struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// AddResult is returned by Coordinator.Add.
type AddResult struct {
	ID                 string   `json:"id"`
	StoredIn           Location `json:"stored_in"`
	EvictedToBuffer    bool     `json:"evicted_to_buffer"`
	BufferAutoEmbedded bool     `json:"buffer_auto_embedded"`
}

// ContextResult is returned by Coordinator.GetContext.
type ContextResult struct {
	Recent   []Entry  `json:"recent"`
	Relevant []Scored `json:"relevant"`
}

// ClearResult is returned by Coordinator.Clear.
type ClearResult struct {
	RecentDeleted   int `json:"recent_deleted"`
	BufferDeleted   int `json:"buffer_deleted"`
	LongtermDeleted int `json:"longterm_deleted"`
}

// CharacterSummary is one row of Coordinator.ListCharacters.
type CharacterSummary struct {
	Character    string    `json:"character"`
	RecentCount  int       `json:"recent_count"`
	BufferCount  int       `json:"buffer_count"`
	VectorCount  int       `json:"vector_count"`
	LastActivity time.Time `json:"last_activity"`
}

// WithLocation annotates an Entry with the tier it was found in, used by
// export and by the admin listing endpoints described in spec §6.
type WithLocation struct {
	Entry    Entry    `json:"entry"`
	Location Location `json:"location"`
}

// ImportItem is one entry submitted to Coordinator.Import. Timestamp is
// optional; when zero, the coordinator assigns the current time.
type ImportItem struct {
	Character string         `json:"character"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// ImportFailure records one item that could not be imported.
type ImportFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ImportResult is returned by Coordinator.Import.
type ImportResult struct {
	Imported int             `json:"imported"`
	Failed   []ImportFailure `json:"failed"`
}
