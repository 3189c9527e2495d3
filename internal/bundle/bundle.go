// Package bundle implements the export/import container of spec §4.E:
// magic bytes, a version byte, then gzip(JSON). Adapted from the .graft
// container format, re-themed to carry located memory entries for one
// character instead of memories-plus-citations for a whole repo.
package bundle

import (
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/CanopyHQ/loreweave/internal/memory"
)

// MagicBytes identifies a .lorebundle file: LORE
var MagicBytes = []byte{0x4C, 0x4F, 0x52, 0x45}

// Version is the current bundle format version.
const Version = 1

// Manifest carries bundle-level metadata alongside the memories.
type Manifest struct {
	Character   string    `json:"character"`
	CreatedAt   time.Time `json:"created_at"`
	MemoryCount int       `json:"memory_count"`
}

// Payload is the JSON content inside the gzip stream.
type Payload struct {
	Manifest Manifest              `json:"manifest"`
	Memories []memory.WithLocation `json:"memories"`
}

// Write packages character's exported memories into w as magic bytes,
// version, then gzip(JSON).
func Write(w io.Writer, character string, memories []memory.WithLocation) error {
	payload := Payload{
		Manifest: Manifest{
			Character:   character,
			CreatedAt:   time.Now().UTC(),
			MemoryCount: len(memories),
		},
		Memories: memories,
	}

	if _, err := w.Write(MagicBytes); err != nil {
		return fmt.Errorf("write magic bytes: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(Version)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(payload); err != nil {
		gz.Close()
		return fmt.Errorf("encode payload: %w", err)
	}
	return gz.Close()
}

// Read unpacks a bundle previously produced by Write.
func Read(r io.Reader) (*Payload, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic bytes: %w", err)
	}
	for i := range MagicBytes {
		if magic[i] != MagicBytes[i] {
			return nil, fmt.Errorf("not a loreweave bundle file")
		}
	}

	var version uint8
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported bundle version: %d (expected %d)", version, Version)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	var payload Payload
	if err := json.NewDecoder(gz).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}

// Inspect returns just the manifest, without holding the full memory list.
func Inspect(r io.Reader) (*Manifest, error) {
	payload, err := Read(r)
	if err != nil {
		return nil, err
	}
	return &payload.Manifest, nil
}

// ToImportItems flattens a payload's located memories into ImportItems for
// memory.Coordinator.Import, dropping the location annotation — reimported
// memories always re-enter through the recent tier (spec §4.E import).
func ToImportItems(payload *Payload) []memory.ImportItem {
	items := make([]memory.ImportItem, len(payload.Memories))
	for i, wl := range payload.Memories {
		items[i] = memory.ImportItem{
			Character: wl.Entry.Character,
			Content:   wl.Entry.Content,
			Metadata:  wl.Entry.Metadata,
			Timestamp: wl.Entry.Timestamp,
		}
	}
	return items
}
