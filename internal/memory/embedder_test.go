package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDimensionsAndNormalization(t *testing.T) {
	embedder := newLocalEmbedder(384)

	for _, text := range []string{
		"hello there",
		"the player returned the stolen amulet",
		"",
		"a much longer piece of dialogue that spans several clauses and should still normalize to unit length",
	} {
		vec, err := embedder.EmbedOne(text)
		require.NoError(t, err)
		assert.Len(t, vec, 384)

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		if text != "" {
			assert.InDelta(t, 1.0, norm, 0.01)
		}
	}
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	embedder := newLocalEmbedder(384)
	text := "the player returned the stolen amulet"

	a, err := embedder.EmbedOne(text)
	require.NoError(t, err)
	b, err := embedder.EmbedOne(text)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalEmbedderEmbedManyMatchesEmbedOne(t *testing.T) {
	embedder := newLocalEmbedder(384)
	texts := []string{"the guard is suspicious", "the merchant trusts the player", "the weather is stormy"}

	batch, err := embedder.EmbedMany(texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := embedder.EmbedOne(text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestLocalEmbedderSimilarityFavorsRelatedText(t *testing.T) {
	embedder := newLocalEmbedder(384)

	trust1, _ := embedder.EmbedOne("the player returned the stolen amulet and the guard now trusts them")
	trust2, _ := embedder.EmbedOne("after the amulet was returned, trust with the guard was restored")
	unrelated, _ := embedder.EmbedOne("the tavern serves ale until midnight")

	simRelated := cosineSimilarity(trust1, trust2)
	simUnrelated := cosineSimilarity(trust1, unrelated)

	assert.Greater(t, simRelated, simUnrelated)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
