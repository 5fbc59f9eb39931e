package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
)

const collectionPrefix = "documents"

// CollectionName derives the index collection for an embedding model. An
// index built with one model is invisible to a loader configured with another.
func CollectionName(model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return collectionPrefix
	}
	return collectionPrefix + ":" + model
}

// EmbeddingFunc adapts an eino embedder to chromem's single-text signature.
func EmbeddingFunc(emb embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := emb.EmbedStrings(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vectors))
		}

		out := make([]float32, len(vectors[0]))
		for i, v := range vectors[0] {
			out[i] = float32(v)
		}
		return out, nil
	}
}
