package rag

import (
	"context"
	"fmt"
	"strings"
)

// ChunkSeparator joins retrieved passages in the context block.
const ChunkSeparator = "\n---\n"

// Retriever turns a question into a context block drawn from the index.
type Retriever struct {
	index       *Index
	chunkBudget int
}

// NewRetriever wraps index. Each returned passage is cut to chunkBudget
// characters; a non-positive budget keeps passages whole.
func NewRetriever(index *Index, chunkBudget int) *Retriever {
	return &Retriever{index: index, chunkBudget: chunkBudget}
}

// Index exposes the underlying index for availability reporting.
func (r *Retriever) Index() *Index {
	return r.index
}

// Query returns the k most similar passages, most similar first, or "" when
// the index is unavailable. Embedding failures are returned.
func (r *Retriever) Query(ctx context.Context, text string, k int) (string, error) {
	if r == nil || r.index == nil || k <= 0 {
		return "", nil
	}
	if !r.index.EnsureLoaded(ctx) {
		return "", nil
	}

	results, err := r.index.query(ctx, text, k)
	if err != nil {
		return "", fmt.Errorf("query index: %w", err)
	}

	passages := make([]string, 0, len(results))
	for _, res := range results {
		passages = append(passages, truncateRunes(res.Content, r.chunkBudget))
	}
	return strings.Join(passages, ChunkSeparator), nil
}

func truncateRunes(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget])
}
