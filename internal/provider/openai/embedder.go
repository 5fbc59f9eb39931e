package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	goopenai "github.com/sashabaranov/go-openai"
)

// EmbedderConfig selects the embedding model. The same configuration must be
// used when building the index and when querying it.
type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Embedder implements embedding.Embedder on the /embeddings endpoint.
type Embedder struct {
	client *goopenai.Client
	model  string
}

var _ embedding.Embedder = (*Embedder)(nil)

// NewEmbedder validates cfg and builds the client.
func NewEmbedder(cfg *EmbedderConfig) (*Embedder, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("embedding model is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" && strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("embedding api key is empty")
	}
	return &Embedder{
		client: newClient(cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
		model:  cfg.Model,
	}, nil
}

// Model returns the configured model name.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedStrings returns one unit-length vector per input, in input order.
func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embeddings response has no data")
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = normalize(d.Embedding)
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("embedding index %d missing in response", i)
		}
	}
	return out, nil
}

func normalize(vec []float32) []float64 {
	out := make([]float64, len(vec))
	var norm float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		out[i] = f
		norm += f * f
	}
	if norm <= 1e-10 {
		return out
	}
	scale := 1 / math.Sqrt(norm)
	for i := range out {
		out[i] *= scale
	}
	return out
}
