package rag_test

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/wa-mentor/backend/internal/service/rag"
)

const testModel = "fake-embed"

// bagOfWords hashes lower-cased words into a fixed vector, so texts sharing
// words end up close together.
type bagOfWords struct {
	err   error
	calls atomic.Int64
}

func (b *bagOfWords) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, 32)
		vec[0] = 0.1
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(strings.Trim(word, ".,?!")))
			vec[1+int(h.Sum32()%31)]++
		}
		var norm float64
		for _, v := range vec {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			vec[j] /= norm
		}
		out[i] = vec
	}
	return out, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func buildIndex(t *testing.T, emb embedding.Embedder) string {
	t.Helper()

	docs := t.TempDir()
	writeFile(t, docs, "grants.txt", "Government grants provide funding for small business owners in Malaysia.")
	writeFile(t, docs, "cooking.md", "Boil the noodles and add chilli paste for a spicy dinner.")

	path := filepath.Join(t.TempDir(), "index.gob.gz")
	report, err := rag.Build(context.Background(), rag.BuildOptions{
		Glob:         filepath.Join(docs, "*"),
		ChunkSize:    800,
		ChunkOverlap: 100,
		Path:         path,
		Model:        testModel,
		Embedder:     emb,
		Concurrency:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Chunks)
	return path
}

func newIndex(path, model string, emb embedding.Embedder) *rag.Index {
	return rag.NewIndex(rag.IndexOptions{
		Path:  path,
		Model: model,
		Embedder: func() (embedding.Embedder, error) {
			return emb, nil
		},
	})
}

func TestSplitRejectsInvalidChunking(t *testing.T) {
	docs := []rag.Document{{Source: "a.txt", Text: "hello"}}

	_, err := rag.Split(docs, 100, 100)
	assert.ErrorIs(t, err, rag.ErrInvalidChunking)
	_, err = rag.Split(docs, 0, 0)
	assert.ErrorIs(t, err, rag.ErrInvalidChunking)
}

func TestSplitProducesOverlappingBoundedChunks(t *testing.T) {
	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("word%02d", i)
	}
	docs := []rag.Document{{Source: "long.txt", Text: strings.Join(words, " ")}}

	chunks, err := rag.Split(docs, 100, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 100)
		assert.Equal(t, "long.txt", chunk.Source)
		if i+1 < len(chunks) {
			fields := strings.Fields(chunk.Text)
			assert.Contains(t, chunks[i+1].Text, fields[len(fields)-1], "adjacent chunks should overlap")
		}
	}
}

func TestBuildFailsOnEmptyFolderWithoutWritingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob.gz")

	_, err := rag.Build(context.Background(), rag.BuildOptions{
		Glob:         filepath.Join(t.TempDir(), "*"),
		ChunkSize:    800,
		ChunkOverlap: 100,
		Path:         path,
		Model:        testModel,
		Embedder:     &bagOfWords{},
	})
	require.ErrorIs(t, err, rag.ErrNoDocuments)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no index file expected")
}

func TestBuildSkipsBlankFiles(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "blank.txt", "   \n\n")
	writeFile(t, docs, "notes.txt", "Micro loans help hawkers expand.")

	loaded, skipped, err := rag.LoadDocuments(context.Background(), filepath.Join(docs, "*"))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, loaded, 1)
	assert.Equal(t, "notes.txt", loaded[0].Source)
}

func TestBuildFailsOnEmbeddingErrorWithoutWritingIndex(t *testing.T) {
	docs := t.TempDir()
	writeFile(t, docs, "grants.txt", "Grants for entrepreneurs.")
	path := filepath.Join(t.TempDir(), "index.gob.gz")

	_, err := rag.Build(context.Background(), rag.BuildOptions{
		Glob:         filepath.Join(docs, "*.txt"),
		ChunkSize:    800,
		ChunkOverlap: 100,
		Path:         path,
		Model:        testModel,
		Embedder:     &bagOfWords{err: errors.New("quota exceeded")},
	})
	require.Error(t, err)

	entries, readErr := os.ReadDir(filepath.Dir(path))
	require.NoError(t, readErr)
	assert.Empty(t, entries, "neither index nor temp file may remain")
}

func TestEmbedAndPersistRequiresChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob.gz")
	err := rag.EmbedAndPersist(context.Background(), nil, path, &bagOfWords{}, rag.PersistOptions{Model: testModel})
	assert.ErrorIs(t, err, rag.ErrNoChunks)
}

func TestRetrieverReturnsMostSimilarFirst(t *testing.T) {
	emb := &bagOfWords{}
	path := buildIndex(t, emb)

	index := newIndex(path, testModel, emb)
	assert.Equal(t, rag.StateUnloaded, index.State())

	retriever := rag.NewRetriever(index, 500)
	out, err := retriever.Query(context.Background(), "Which grants give funding to small business?", 5)
	require.NoError(t, err)
	assert.True(t, index.IsAvailable())

	passages := strings.Split(out, rag.ChunkSeparator)
	require.Len(t, passages, 2, "k is clamped to the collection size")
	assert.Contains(t, passages[0], "Government grants")
	assert.Contains(t, passages[1], "noodles")
}

func TestRetrieverTruncatesPassages(t *testing.T) {
	emb := &bagOfWords{}
	path := buildIndex(t, emb)

	retriever := rag.NewRetriever(newIndex(path, testModel, emb), 10)
	out, err := retriever.Query(context.Background(), "grants", 1)
	require.NoError(t, err)
	assert.Equal(t, "Government", out)
}

func TestRetrieverPropagatesEmbeddingErrors(t *testing.T) {
	path := buildIndex(t, &bagOfWords{})

	failing := &bagOfWords{err: errors.New("provider down")}
	retriever := rag.NewRetriever(newIndex(path, testModel, failing), 500)

	_, err := retriever.Query(context.Background(), "grants", 2)
	assert.Error(t, err)
}

func TestIndexUnavailableCases(t *testing.T) {
	emb := &bagOfWords{}
	path := buildIndex(t, emb)

	cases := map[string]*rag.Index{
		"missing file":    newIndex(filepath.Join(t.TempDir(), "absent.gob.gz"), testModel, emb),
		"model mismatch":  newIndex(path, "other-model", emb),
		"corrupt file":    newIndex(corruptFile(t), testModel, emb),
		"factory failure": rag.NewIndex(rag.IndexOptions{Path: path, Model: testModel, Embedder: func() (embedding.Embedder, error) { return nil, errors.New("no key") }}),
	}

	for name, index := range cases {
		t.Run(name, func(t *testing.T) {
			retriever := rag.NewRetriever(index, 500)
			out, err := retriever.Query(context.Background(), "What grants are available?", 3)
			require.NoError(t, err)
			assert.Empty(t, out)
			assert.Equal(t, rag.StateUnavailable, index.State())
			assert.False(t, index.EnsureLoaded(context.Background()), "outcome is terminal")
		})
	}
}

func corruptFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.gob.gz")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))
	return path
}

func TestEnsureLoadedRunsOnce(t *testing.T) {
	emb := &bagOfWords{}
	path := buildIndex(t, emb)

	var factoryCalls atomic.Int64
	index := rag.NewIndex(rag.IndexOptions{
		Path:  path,
		Model: testModel,
		Embedder: func() (embedding.Embedder, error) {
			factoryCalls.Add(1)
			return emb, nil
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, index.EnsureLoaded(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), factoryCalls.Load())
	assert.Equal(t, rag.StateAvailable, index.State())
}
