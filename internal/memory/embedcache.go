package memory

import (
	"github.com/dgraph-io/ristretto"
)

// embedCache caches embed_one results keyed by input text, so repeated
// recall/search queries against the same phrase (common across the
// round-trip and search-scenario tests) skip re-embedding. Batched
// embed_many calls use the same cache: texts already cached are taken from
// it, and only the misses are sent to the backend, whose results are then
// cached as well.
type embedCache struct {
	c *ristretto.Cache
}

func newEmbedCache() *embedCache {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20, // ~1MB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		// A cache is a pure optimization; degrade to no caching rather than
		// fail engine construction.
		return &embedCache{c: nil}
	}
	return &embedCache{c: c}
}

func (e *embedCache) get(text string) ([]float32, bool) {
	if e.c == nil {
		return nil, false
	}
	v, ok := e.c.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (e *embedCache) set(text string, vec []float32) {
	if e.c == nil {
		return
	}
	e.c.Set(text, vec, int64(len(vec)*4))
}
