package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmbedCacheSetGet(t *testing.T) {
	c := newEmbedCache()
	vec := []float32{0.1, 0.2, 0.3}
	c.set("hello", vec)
	time.Sleep(10 * time.Millisecond) // ristretto applies Set asynchronously

	got, ok := c.get("hello")
	assert.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestEmbedCacheMiss(t *testing.T) {
	c := newEmbedCache()
	_, ok := c.get("never set")
	assert.False(t, ok)
}
