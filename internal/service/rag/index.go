package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle of the persisted index inside one process.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// EmbedderFactory builds the query-time embedder on first load.
type EmbedderFactory func() (embedding.Embedder, error)

// IndexOptions locates the persisted index and its embedding model.
type IndexOptions struct {
	Path     string
	Model    string
	Embedder EmbedderFactory
	Logger   logrus.FieldLogger
}

// Index lazily loads the persisted vector index. The first EnsureLoaded call
// decides the outcome for the lifetime of the process.
type Index struct {
	opts   IndexOptions
	logger logrus.FieldLogger

	once       sync.Once
	state      atomic.Int32
	collection *chromem.Collection
}

// NewIndex returns an unloaded index. Nothing touches the disk until
// EnsureLoaded.
func NewIndex(opts IndexOptions) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Index{
		opts:   opts,
		logger: logger.WithField("component", "rag"),
	}
}

// EnsureLoaded loads the index at most once and reports whether it is
// available. Concurrent callers block until the single load finishes.
func (i *Index) EnsureLoaded(ctx context.Context) bool {
	i.once.Do(func() {
		i.state.Store(int32(StateLoading))

		collection, err := i.load(ctx)
		if err != nil {
			i.logger.WithError(err).WithField("path", i.opts.Path).Warn("vector index unavailable, continuing without retrieval")
			i.state.Store(int32(StateUnavailable))
			return
		}

		i.collection = collection
		i.state.Store(int32(StateAvailable))
		i.logger.WithFields(logrus.Fields{
			"path":   i.opts.Path,
			"chunks": collection.Count(),
		}).Info("vector index loaded")
	})
	return i.IsAvailable()
}

// IsAvailable reports the cached load outcome without triggering a load.
func (i *Index) IsAvailable() bool {
	return i.State() == StateAvailable
}

// State returns the current lifecycle state.
func (i *Index) State() State {
	return State(i.state.Load())
}

func (i *Index) load(_ context.Context) (*chromem.Collection, error) {
	if i.opts.Path == "" {
		return nil, errors.New("index path not configured")
	}
	if _, err := os.Stat(i.opts.Path); err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	if i.opts.Embedder == nil {
		return nil, errors.New("embedder not configured")
	}

	emb, err := i.opts.Embedder()
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(i.opts.Path, ""); err != nil {
		return nil, fmt.Errorf("import index: %w", err)
	}

	name := CollectionName(i.opts.Model)
	collection := db.GetCollection(name, EmbeddingFunc(emb))
	if collection == nil {
		found := make([]string, 0)
		for existing := range db.ListCollections() {
			found = append(found, existing)
		}
		return nil, fmt.Errorf("collection %q not in index (found %v)", name, found)
	}
	if collection.Count() == 0 {
		return nil, fmt.Errorf("collection %q is empty", name)
	}
	return collection, nil
}

// query runs a similarity search, k clamped to the collection size.
func (i *Index) query(ctx context.Context, text string, k int) ([]chromem.Result, error) {
	if !i.IsAvailable() || k <= 0 {
		return nil, nil
	}
	if count := i.collection.Count(); k > count {
		k = count
	}
	return i.collection.Query(ctx, text, k, nil, nil)
}
