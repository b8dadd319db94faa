//go:build !onnx

package main

import (
	"github.com/mnemohq/mnemo/memory"
	"github.com/mnemohq/mnemo/memory/embedder/mock"
)

// newEmbedderFactory returns the hash-based embedder. Build with the onnx
// tag for real semantic search.
func newEmbedderFactory(cfg *memory.Config) memory.EmbedderFactory {
	return func() (memory.Embedder, error) {
		return mock.New(), nil
	}
}
