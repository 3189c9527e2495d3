package memory

import (
	"math"
	"strings"
)

// Embedder turns text into fixed-dimension vectors. embed_many MUST be
// preferred over repeated embed_one calls whenever the caller already has
// two or more texts on hand (spec §4.A) — the buffer tier's embed step is
// the primary caller of embed_many.
type Embedder interface {
	EmbedOne(text string) ([]float32, error)
	EmbedMany(texts []string) ([][]float32, error)
	Dimensions() int
}

// localEmbedder is a deterministic, dependency-free embedder built from
// four hashed feature streams — token, character-shingle, semantic-category
// and structural — all folded into one vector via a signed hashing trick
// rather than fixed positional slots. It is always available (no model
// download, no GPU), which is what makes warmup() reliable even in
// air-gapped or test environments — it backs the "cpu" backend and is the
// terminal fallback for "auto" when no accelerator is present.
type localEmbedder struct {
	dimensions int
	stopwords  map[string]bool
}

func newLocalEmbedder(dimensions int) *localEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &localEmbedder{
		dimensions: dimensions,
		stopwords:  buildStopwords(),
	}
}

func buildStopwords() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
		"be", "have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "must", "shall", "can", "it", "its", "this",
		"that", "these", "those", "i", "you", "he", "she", "we", "they", "what",
		"which", "who", "where", "when", "why", "how", "all", "each", "every",
		"some", "such", "no", "nor", "not", "only", "own", "so", "than", "too",
		"very", "just", "also", "now", "here",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// semanticCategories boosts terms plausible in NPC dialogue and event logs.
var semanticCategories = map[string][]string{
	"time":     {"today", "yesterday", "tomorrow", "morning", "night", "now", "later", "recently", "always", "never"},
	"action":   {"give", "take", "attack", "flee", "help", "trade", "kill", "steal", "greet", "warn", "follow", "meet"},
	"people":   {"player", "guard", "merchant", "king", "queen", "villager", "friend", "enemy", "stranger", "ally"},
	"status":   {"happy", "angry", "afraid", "grateful", "suspicious", "injured", "dead", "alive", "hostile", "friendly"},
	"place":    {"village", "forest", "castle", "market", "tavern", "cave", "road", "camp", "shrine", "ruins"},
	"priority": {"urgent", "important", "critical", "dangerous", "secret", "quest", "reward", "debt"},
}

func (e *localEmbedder) EmbedOne(text string) ([]float32, error) {
	return e.generate(text), nil
}

func (e *localEmbedder) EmbedMany(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.generate(t)
	}
	return out, nil
}

func (e *localEmbedder) Dimensions() int { return e.dimensions }

// generate builds one embedding by splitting the vector into four
// contiguous regions — tokens (50%), character shingles (25%), semantic
// categories (15%), and structural signals (the remainder) — and hashing
// each feature stream's contribution into its own region.
func (e *localEmbedder) generate(text string) []float32 {
	embedding := make([]float32, e.dimensions)

	lower := strings.ToLower(text)
	words := tokenize(lower)
	if len(words) == 0 {
		return embedding
	}

	tokenDims := e.dimensions * 50 / 100
	shingleDims := e.dimensions * 25 / 100
	semanticDims := e.dimensions * 15 / 100

	tokenEnd := tokenDims
	shingleEnd := tokenEnd + shingleDims
	semanticEnd := shingleEnd + semanticDims

	e.hashTokens(embedding[:tokenEnd], words)
	hashShingles(embedding[tokenEnd:shingleEnd], lower)
	hashSemantics(embedding[shingleEnd:semanticEnd], words)
	hashStructure(embedding[semanticEnd:], text, words)

	normalize(embedding)
	return embedding
}

// tokenize splits text on punctuation and applies a light suffix trim so
// that inflected surface forms ("returned", "returns") land on the same
// token as their root ("return") — not a real stemmer, just enough to fold
// obvious variants together before hashing.
func tokenize(text string) []string {
	for _, p := range []string{".", ",", "!", "?", ";", ":", "'", "\"", "(", ")", "[", "]", "{", "}", "\n", "\t"} {
		text = strings.ReplaceAll(text, p, " ")
	}
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) <= 1 {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

func stem(w string) string {
	switch {
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		return w[:len(w)-3]
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "es") && len(w) > 4:
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	default:
		return w
	}
}

// hashTokens folds unigrams and two lengths of word context (an adjacent
// bigram and a skip-2 gram) into embedding, weighted by a position decay
// (earlier tokens count for more) and a log-scaled term frequency computed
// once per text rather than recounted per n-gram.
func (e *localEmbedder) hashTokens(embedding []float32, words []string) {
	if len(embedding) == 0 {
		return
	}
	n := len(words)
	freq := make(map[string]int, n)
	for _, w := range words {
		freq[w]++
	}

	for i, w := range words {
		if n > 1 && e.stopwords[w] {
			continue
		}
		decay := float32(1.0 / (1.0 + float64(i)/float64(n)))
		tf := float32(1.0 + math.Log(float64(freq[w])))

		accumulateHashed(embedding, w, decay*tf)
		if i+1 < n {
			accumulateHashed(embedding, w+"_"+words[i+1], decay*tf*0.5)
		}
		if i+2 < n {
			accumulateHashed(embedding, w+"__"+words[i+2], decay*tf*0.25)
		}
	}
}

// hashShingles folds strided 4-character shingles (every other starting
// offset, to keep the cost sub-quadratic on long text) and a character-class
// histogram into embedding. Unlike a fixed vowel/consonant/digit/special
// layout, each class is hashed to wherever its name lands in this region.
func hashShingles(embedding []float32, text string) {
	if len(embedding) == 0 {
		return
	}
	const shingleLen = 4
	for i := 0; i+shingleLen <= len(text); i += 2 {
		accumulateHashed(embedding, "shingle:"+text[i:i+shingleLen], 0.15)
	}

	var vowels, consonants, digits, spaces, punct int
	for _, c := range text {
		switch {
		case strings.ContainsRune("aeiou", c):
			vowels++
		case c >= 'a' && c <= 'z':
			consonants++
		case c >= '0' && c <= '9':
			digits++
		case c == ' ':
			spaces++
		default:
			punct++
		}
	}
	total := float32(len(text))
	if total == 0 {
		return
	}
	accumulateHashed(embedding, "class:vowel", float32(vowels)/total)
	accumulateHashed(embedding, "class:consonant", float32(consonants)/total)
	accumulateHashed(embedding, "class:digit", float32(digits)/total)
	accumulateHashed(embedding, "class:space", float32(spaces)/total)
	accumulateHashed(embedding, "class:punct", float32(punct)/total)
}

// hashSemantics scores each category by the number of its keywords
// present in words (whole-word or substring match), divided by
// sqrt(word count + 1) so short and long memories are scored comparably, then
// hashes the category's contribution into this region.
func hashSemantics(embedding []float32, words []string) {
	if len(embedding) == 0 {
		return
	}
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	for category, keywords := range semanticCategories {
		var hits float32
		for _, kw := range keywords {
			if present[kw] {
				hits++
				continue
			}
			for _, w := range words {
				if strings.Contains(w, kw) {
					hits++
					break
				}
			}
		}
		if hits == 0 {
			continue
		}
		score := hits / float32(math.Sqrt(float64(len(words)+1)))
		accumulateHashed(embedding, "cat:"+category, score)
	}
}

// hashStructure hashes named shape signals (length, sentence count,
// punctuation cues, emphasis ratio) into this region instead of writing
// them to fixed indices, so the layout tolerates a small final region even
// when dimensions doesn't divide evenly.
func hashStructure(embedding []float32, text string, words []string) {
	if len(embedding) == 0 {
		return
	}
	accumulateHashed(embedding, "feat:charlen", float32(math.Log(float64(len(text)+1))))
	accumulateHashed(embedding, "feat:wordcount", float32(math.Log(float64(len(words)+1))))

	if len(words) > 0 {
		totalLen := 0
		for _, w := range words {
			totalLen += len(w)
		}
		accumulateHashed(embedding, "feat:avgwordlen", float32(totalLen)/float32(len(words)))
	}

	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	accumulateHashed(embedding, "feat:sentences", float32(math.Log(float64(sentences+1))))

	if strings.Contains(text, "?") {
		accumulateHashed(embedding, "feat:question", 1.0)
	}
	if strings.Contains(text, "\"") {
		accumulateHashed(embedding, "feat:quote", 1.0)
	}

	upper := 0
	for _, c := range text {
		if c >= 'A' && c <= 'Z' {
			upper++
		}
	}
	if len(text) > 0 {
		accumulateHashed(embedding, "feat:upperratio", float32(upper)/float32(len(text)))
	}
}

// accumulateHashed adds weight to embedding at a position derived from
// token's hash, negating it when the hash is odd. This signed-hashing trick
// keeps hash collisions from only ever reinforcing one another.
func accumulateHashed(embedding []float32, token string, weight float32) {
	dims := len(embedding)
	if dims == 0 {
		return
	}
	h := hashString(token)
	idx := int(h % uint32(dims))
	if h&1 == 1 {
		weight = -weight
	}
	embedding[idx] += weight
}

func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(norm)))
	for i := range v {
		v[i] *= inv
	}
}

// hashString is a Jenkins-one-at-a-time-style mixing hash, used only for
// feature hashing — it need not be cryptographic.
func hashString(s string) uint32 {
	var h uint32 = 0x9e3779b9
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h = h*2654435761 + (h << 6) + (h >> 2)
	}
	h ^= h >> 15
	return h
}
