//go:build !onnx

package memory

import "fmt"

type onnxProvider int

const (
	onnxProviderCUDA onnxProvider = iota
	onnxProviderMetal
)

// newONNXEmbedder is unavailable in builds without the "onnx" tag; auto
// selection falls through to the local backend, and an explicit gpu-cuda
// or gpu-metal request fails with this error.
func newONNXEmbedder(modelDir string, provider onnxProvider) (Embedder, error) {
	return nil, fmt.Errorf("built without onnx support (rebuild with -tags onnx)")
}
