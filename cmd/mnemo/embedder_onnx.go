//go:build onnx

package main

import (
	"os"
	"path/filepath"

	"github.com/mnemohq/mnemo/memory"
	"github.com/mnemohq/mnemo/memory/embedder/onnx"
)

// newEmbedderFactory loads the ONNX model named by the configuration. The
// model directory must contain model.onnx and tokenizer.json. Construction
// is deferred to the gateway so startup stays fast.
func newEmbedderFactory(cfg *memory.Config) memory.EmbedderFactory {
	modelDir := cfg.EmbeddingModel
	if modelDir == "" {
		modelDir = os.Getenv("MNEMO_ONNX_MODEL_DIR")
	}
	return func() (memory.Embedder, error) {
		return onnx.New(onnx.Config{
			ModelPath:     filepath.Join(modelDir, "model.onnx"),
			TokenizerPath: filepath.Join(modelDir, "tokenizer.json"),
		})
	}
}
