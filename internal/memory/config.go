package memory

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config carries the recognized options from spec §4.F. Every field is
// populated from an environment variable, mirroring the option one-for-one
// per spec §6, with defaults matching the original CharacterMemorySystem
// config (recent_memory_size=5, long_term_buffer_size=10, ...).
type Config struct {
	RecentCapacity     int    // LOREWEAVE_RECENT_CAPACITY
	BufferThreshold    int    // LOREWEAVE_BUFFER_THRESHOLD
	DefaultSearchK     int    // LOREWEAVE_DEFAULT_SEARCH_K
	EmbeddingBackend   string // LOREWEAVE_EMBEDDING_BACKEND: auto/cpu/gpu-cuda/gpu-metal
	PreloadEmbeddings  bool   // LOREWEAVE_PRELOAD_EMBEDDINGS
	MaxEmbedBatch      int    // LOREWEAVE_MAX_EMBED_BATCH
	RecentSnapshotPath string // LOREWEAVE_RECENT_SNAPSHOT_PATH
	BufferDir          string // LOREWEAVE_BUFFER_DIR
	VectorStoreDir     string // LOREWEAVE_VECTOR_STORE_DIR
	ONNXModelPath      string // LOREWEAVE_ONNX_MODEL (optional, enables the onnx backend)
}

// DefaultConfig returns the recognized options populated from environment
// variables, falling back to the original system's defaults where unset.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	dataDir := getenv("LOREWEAVE_DATA_DIR", filepath.Join(home, ".loreweave"))

	return Config{
		RecentCapacity:     getenvInt("LOREWEAVE_RECENT_CAPACITY", 5),
		BufferThreshold:    getenvInt("LOREWEAVE_BUFFER_THRESHOLD", 10),
		DefaultSearchK:     getenvInt("LOREWEAVE_DEFAULT_SEARCH_K", 3),
		EmbeddingBackend:   getenv("LOREWEAVE_EMBEDDING_BACKEND", "auto"),
		PreloadEmbeddings:  getenvBool("LOREWEAVE_PRELOAD_EMBEDDINGS", true),
		MaxEmbedBatch:      getenvInt("LOREWEAVE_MAX_EMBED_BATCH", 50),
		RecentSnapshotPath: getenv("LOREWEAVE_RECENT_SNAPSHOT_PATH", filepath.Join(dataDir, "recent.json")),
		BufferDir:          getenv("LOREWEAVE_BUFFER_DIR", filepath.Join(dataDir, "buffer")),
		VectorStoreDir:     getenv("LOREWEAVE_VECTOR_STORE_DIR", filepath.Join(dataDir, "vectors")),
		ONNXModelPath:      os.Getenv("LOREWEAVE_ONNX_MODEL"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
