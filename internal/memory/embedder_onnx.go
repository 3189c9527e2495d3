//go:build onnx

package memory

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

type onnxProvider int

const (
	onnxProviderCUDA onnxProvider = iota
	onnxProviderMetal
)

// onnxEmbedder generates embeddings via ONNX Runtime, grounded on the
// tokenize→infer→mean-pool→normalize pipeline used for MiniLM-class
// sentence-embedding models. It is only compiled in when built with the
// "onnx" tag and only ever constructed when an explicit gpu-cuda or
// gpu-metal backend (or auto, probing in that order) is configured with a
// model path.
type onnxEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *bertTokenizer
	dimensions int
}

func newONNXEmbedder(modelDir string, provider onnxProvider) (Embedder, error) {
	if modelDir == "" {
		return nil, fmt.Errorf("no onnx model path configured")
	}
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenizerPath := filepath.Join(modelDir, "tokenizer.json")

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	tokenizer, err := loadBERTTokenizer(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	switch provider {
	case onnxProviderCUDA:
		if err := opts.AppendExecutionProviderCUDA(); err != nil {
			return nil, fmt.Errorf("cuda execution provider: %w", err)
		}
	case onnxProviderMetal:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			return nil, fmt.Errorf("coreml (metal) execution provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxEmbedder{session: session, tokenizer: tokenizer, dimensions: 384}, nil
}

func (e *onnxEmbedder) Dimensions() int { return e.dimensions }

func (e *onnxEmbedder) EmbedOne(text string) ([]float32, error) {
	out, err := e.EmbedMany([]string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *onnxEmbedder) EmbedMany(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.embedOne(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

const onnxMaxLen = 128

func (e *onnxEmbedder) embedOne(text string) ([]float32, error) {
	tokens := e.tokenizer.Tokenize(text)

	inputIDs := make([]int64, onnxMaxLen)
	attentionMask := make([]int64, onnxMaxLen)
	tokenTypeIDs := make([]int64, onnxMaxLen)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > onnxMaxLen-2 {
		tokenLen = onnxMaxLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	idsTensor, err := ort.NewTensor(ort.NewShape(1, onnxMaxLen), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(ort.NewShape(1, onnxMaxLen), attentionMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(ort.NewShape(1, onnxMaxLen), tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	inputs := []ort.Value{idsTensor, maskTensor, typeTensor}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	data := tensor.GetData()
	shape := tensor.GetShape()

	embedding := make([]float32, e.dimensions)
	if len(shape) == 3 {
		seqLen := int(shape[1])
		hidden := int(shape[2])
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden && j < e.dimensions; j++ {
				embedding[j] += data[offset+j]
			}
		}
		if attended > 0 {
			for j := range embedding {
				embedding[j] /= attended
			}
		}
	} else {
		copy(embedding, data)
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(float64(norm)))
		for i := range embedding {
			embedding[i] *= inv
		}
	}
	return embedding, nil
}

type bertTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadBERTTokenizer(path string) (*bertTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &bertTokenizer{vocab: raw.Model.Vocab, clsToken: 101, sepToken: 102, unkToken: 100}, nil
}

func (t *bertTokenizer) Tokenize(text string) []int64 {
	text = strings.ToLower(text)
	var tokens []int64
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,!?;:\"'")
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.wordPieces(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

func (t *bertTokenizer) wordPieces(word string) []string {
	if word == "" {
		return nil
	}
	var out []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				out = append(out, piece)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			out = append(out, "[UNK]")
			start++
		}
	}
	return out
}
