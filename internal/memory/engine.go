package memory

import (
	"fmt"
	"sync"
)

// Status is the Embedding Engine's lifecycle state (spec §4.A).
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
)

// Backend selects the compute backend for the Embedding Engine.
type Backend string

const (
	BackendAuto     Backend = "auto"
	BackendCPU      Backend = "cpu"
	BackendGPUCUDA  Backend = "gpu-cuda"
	BackendGPUMetal Backend = "gpu-metal"
)

// Engine is the process-wide singleton described in spec §4.A: at most one
// loaded model, safe for concurrent embed_* calls, lazily initialized. It
// is expressed as a struct with init-once discipline (double-checked
// locking) rather than a package-level mutable static, per the Design
// Note in §9.
type Engine struct {
	backend    Backend
	onnxModel  string
	dimensions int

	mu       sync.Mutex
	status   Status
	impl     Embedder
	loadErr  error
	warmedUp bool

	cache *embedCache
}

// NewEngine constructs an Engine in the uninitialized state. It does not
// load anything until Warmup or the first EmbedOne/EmbedMany call.
func NewEngine(cfg Config) *Engine {
	dims := 384
	return &Engine{
		backend:    Backend(cfg.EmbeddingBackend),
		onnxModel:  cfg.ONNXModelPath,
		dimensions: dims,
		status:     StatusUninitialized,
		cache:      newEmbedCache(),
	}
}

// Status reports the engine's current lifecycle state without triggering
// a load.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Warmup forces the transition to ready (or failed). Idempotent: calling
// it again after a successful warmup is a no-op.
func (e *Engine) Warmup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureLoadedLocked()
}

// Dimensions returns D, the fixed embedding dimension. It does not trigger
// a load: before the engine has loaded, it reports the configured dimension.
func (e *Engine) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.impl != nil {
		return e.impl.Dimensions()
	}
	return e.dimensions
}

// EmbedOne returns a D-dimensional vector for text, consulting the cache
// first.
func (e *Engine) EmbedOne(text string) ([]float32, error) {
	if v, ok := e.cache.get(text); ok {
		return v, nil
	}
	impl, err := e.load()
	if err != nil {
		return nil, errEmbeddingUnavailable(err)
	}
	v, err := impl.EmbedOne(text)
	if err != nil {
		return nil, errEmbeddingUnavailable(err)
	}
	e.cache.set(text, v)
	return v, nil
}

// EmbedMany embeds a batch, order-preserving and length-preserving. Batched
// embedding is the path the buffer tier's embed step always takes once
// B≥2 entries are pending (spec §4.A).
func (e *Engine) EmbedMany(texts []string) ([][]float32, error) {
	impl, err := e.load()
	if err != nil {
		return nil, errEmbeddingUnavailable(err)
	}

	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, t := range texts {
		if v, ok := e.cache.get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	embedded, err := impl.EmbedMany(missTexts)
	if err != nil {
		return nil, errEmbeddingUnavailable(err)
	}
	for j, i := range missIdx {
		out[i] = embedded[j]
		e.cache.set(missTexts[j], embedded[j])
	}
	return out, nil
}

func (e *Engine) load() (Embedder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	return e.impl, nil
}

// ensureLoadedLocked performs the double-checked-locking load. Caller must
// hold e.mu.
func (e *Engine) ensureLoadedLocked() error {
	if e.status == StatusReady {
		return nil
	}
	if e.status == StatusFailed {
		return e.loadErr
	}

	e.status = StatusLoading
	impl, err := selectBackend(e.backend, e.onnxModel, e.dimensions)
	if err != nil {
		e.status = StatusFailed
		e.loadErr = err
		return err
	}
	e.impl = impl
	e.status = StatusReady
	e.warmedUp = true
	return nil
}

// selectBackend resolves the configured backend to a concrete Embedder.
// auto probes cuda→metal→cpu, picking the first that constructs
// successfully; any explicit non-cpu/auto choice that fails to construct
// is a hard failure (the engine transitions to failed, not cpu) since the
// caller asked for that backend specifically.
func selectBackend(backend Backend, onnxModel string, dimensions int) (Embedder, error) {
	switch backend {
	case BackendCPU, "":
		return newLocalEmbedder(dimensions), nil
	case BackendGPUCUDA:
		emb, err := newONNXEmbedder(onnxModel, onnxProviderCUDA)
		if err != nil {
			return nil, fmt.Errorf("gpu-cuda backend unavailable: %w", err)
		}
		return emb, nil
	case BackendGPUMetal:
		emb, err := newONNXEmbedder(onnxModel, onnxProviderMetal)
		if err != nil {
			return nil, fmt.Errorf("gpu-metal backend unavailable: %w", err)
		}
		return emb, nil
	case BackendAuto:
		if emb, err := newONNXEmbedder(onnxModel, onnxProviderCUDA); err == nil {
			return emb, nil
		}
		if emb, err := newONNXEmbedder(onnxModel, onnxProviderMetal); err == nil {
			return emb, nil
		}
		return newLocalEmbedder(dimensions), nil
	default:
		return nil, fmt.Errorf("unrecognized embedding backend %q", backend)
	}
}
