package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(Config{EmbeddingBackend: "cpu"})
}

func TestEngineStartsUninitialized(t *testing.T) {
	e := newTestEngine()
	assert.Equal(t, StatusUninitialized, e.Status())
}

func TestEngineWarmupTransitionsToReady(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Warmup())
	assert.Equal(t, StatusReady, e.Status())
}

func TestEngineWarmupIdempotent(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Warmup())
	require.NoError(t, e.Warmup())
	assert.Equal(t, StatusReady, e.Status())
}

func TestEngineEmbedOneLazilyLoads(t *testing.T) {
	e := newTestEngine()
	vec, err := e.EmbedOne("the guard is suspicious")
	require.NoError(t, err)
	assert.Len(t, vec, e.Dimensions())
	assert.Equal(t, StatusReady, e.Status())
}

func TestEngineEmbedOneCachesResult(t *testing.T) {
	e := newTestEngine()
	a, err := e.EmbedOne("the guard is suspicious")
	require.NoError(t, err)
	b, err := e.EmbedOne("the guard is suspicious")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngineEmbedManyPreservesOrderAndLength(t *testing.T) {
	e := newTestEngine()
	texts := []string{"one", "two", "three"}
	out, err := e.EmbedMany(texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, text := range texts {
		single, err := e.EmbedOne(text)
		require.NoError(t, err)
		assert.Equal(t, single, out[i])
	}
}

func TestEngineUnrecognizedBackendFails(t *testing.T) {
	e := NewEngine(Config{EmbeddingBackend: "quantum"})
	_, err := e.EmbedOne("hello")
	assert.Error(t, err)
	assert.Equal(t, KindEmbeddingUnavailable, KindOf(err))
	assert.Equal(t, StatusFailed, e.Status())
}

func TestEngineAutoFallsBackToLocal(t *testing.T) {
	e := NewEngine(Config{EmbeddingBackend: "auto"})
	vec, err := e.EmbedOne("hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Equal(t, StatusReady, e.Status())
}
