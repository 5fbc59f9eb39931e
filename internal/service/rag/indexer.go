package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
)

var (
	ErrNoDocuments     = errors.New("no documents found")
	ErrNoChunks        = errors.New("no chunks to index")
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than a positive chunk size")
)

const (
	metaSource = "source"
	metaPage   = "page"
)

// Document is the extracted text of one file, or of one page for PDFs.
type Document struct {
	Source string
	Page   int
	Text   string
}

// Chunk is an overlapping slice of a document, the unit that gets embedded.
type Chunk struct {
	Text   string
	Source string
	Page   int
}

// BuildOptions parameterises a full index build.
type BuildOptions struct {
	Glob         string
	ChunkSize    int
	ChunkOverlap int
	Path         string
	Model        string
	Embedder     embedding.Embedder
	Concurrency  int
	Logger       logrus.FieldLogger
}

// BuildReport summarises what a build consumed and produced.
type BuildReport struct {
	Files     int    `json:"files"`
	Skipped   int    `json:"skipped"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Path      string `json:"path"`
}

// PersistOptions controls how chunks are embedded and written.
type PersistOptions struct {
	Model       string
	Concurrency int
}

// Build loads, splits, embeds and persists the documents matched by
// opts.Glob. On any error no index file is written.
func Build(ctx context.Context, opts BuildOptions) (BuildReport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "indexer")

	report := BuildReport{Path: opts.Path}
	if opts.ChunkSize <= 0 || opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return report, ErrInvalidChunking
	}

	docs, files, skipped, err := loadDocuments(ctx, opts.Glob, logger)
	report.Files = files
	report.Skipped = skipped
	report.Documents = len(docs)
	if err != nil {
		return report, err
	}
	if len(docs) == 0 {
		return report, fmt.Errorf("%w matching %q", ErrNoDocuments, opts.Glob)
	}
	logger.WithFields(logrus.Fields{"documents": len(docs), "skipped": skipped}).Info("documents loaded")

	chunks, err := Split(docs, opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return report, err
	}
	report.Chunks = len(chunks)
	logger.WithField("chunks", len(chunks)).Info("documents split")

	if opts.Embedder == nil {
		return report, errors.New("embedder is required")
	}
	err = EmbedAndPersist(ctx, chunks, opts.Path, opts.Embedder, PersistOptions{
		Model:       opts.Model,
		Concurrency: opts.Concurrency,
	})
	if err != nil {
		return report, err
	}

	logger.WithField("path", opts.Path).Info("index written")
	return report, nil
}

// LoadDocuments reads every regular file matched by glob. Files that cannot
// be read or contain no text are skipped and counted.
func LoadDocuments(ctx context.Context, glob string) ([]Document, int, error) {
	docs, _, skipped, err := loadDocuments(ctx, glob, logrus.StandardLogger().WithField("component", "indexer"))
	return docs, skipped, err
}

func loadDocuments(ctx context.Context, glob string, logger logrus.FieldLogger) ([]Document, int, int, error) {
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid document glob %q: %w", glob, err)
	}
	sort.Strings(paths)

	var (
		docs    []Document
		files   int
		skipped int
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files++

		loaded, err := loadFile(ctx, path, info.Size())
		if err != nil {
			skipped++
			logger.WithError(err).WithField("file", path).Warn("skipping unreadable document")
			continue
		}
		if len(loaded) == 0 {
			skipped++
			logger.WithField("file", path).Warn("skipping document without text")
			continue
		}
		docs = append(docs, loaded...)
	}
	return docs, files, skipped, nil
}

func loadFile(ctx context.Context, path string, size int64) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := filepath.Base(path)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return loadPDF(ctx, f, size, source)
	}
	return loadText(ctx, f, source)
}

func loadPDF(ctx context.Context, r io.ReaderAt, size int64, source string) ([]Document, error) {
	pages, err := documentloaders.NewPDF(r, size).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	docs := make([]Document, 0, len(pages))
	for i, page := range pages {
		if strings.TrimSpace(page.PageContent) == "" {
			continue
		}
		number := i + 1
		if p, ok := page.Metadata[metaPage].(int); ok {
			number = p
		}
		docs = append(docs, Document{Source: source, Page: number, Text: page.PageContent})
	}
	return docs, nil
}

func loadText(ctx context.Context, r io.Reader, source string) ([]Document, error) {
	loaded, err := documentloaders.NewText(r).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	var docs []Document
	for _, doc := range loaded {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		docs = append(docs, Document{Source: source, Text: doc.PageContent})
	}
	return docs, nil
}

// Split cuts documents into chunks of at most chunkSize characters, adjacent
// chunks sharing up to overlap characters.
func Split(docs []Document, chunkSize, overlap int) ([]Chunk, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidChunking
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
	)

	var chunks []Chunk
	for _, doc := range docs {
		parts, err := splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", doc.Source, err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, Chunk{Text: part, Source: doc.Source, Page: doc.Page})
		}
	}
	return chunks, nil
}

// EmbedAndPersist embeds every chunk and writes a compressed index to path.
// The file is replaced atomically; a failed build leaves any previous index
// untouched.
func EmbedAndPersist(ctx context.Context, chunks []Chunk, path string, emb embedding.Embedder, opts PersistOptions) error {
	if len(chunks) == 0 {
		return ErrNoChunks
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("index path is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(CollectionName(opts.Model), map[string]string{"model": opts.Model}, EmbeddingFunc(emb))
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		meta := map[string]string{metaSource: chunk.Source}
		if chunk.Page > 0 {
			meta[metaPage] = strconv.Itoa(chunk.Page)
		}
		docs[i] = chromem.Document{
			ID:       fmt.Sprintf("chunk-%06d", i),
			Metadata: meta,
			Content:  chunk.Text,
		}
	}
	if err := collection.AddDocuments(ctx, docs, concurrency); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := db.ExportToFile(tmpPath, true, ""); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("export index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
