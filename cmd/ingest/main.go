package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/zhouzirui/wa-mentor/backend/internal/config"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/rag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		cli.HandleExitCoder(err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "build the document index used for retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "docs", Aliases: []string{"d"}, Usage: "glob of source documents (default: DOCS_GLOB)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "index file to write (default: INDEX_PATH)"},
			&cli.IntFlag{Name: "chunk-size", Usage: "characters per chunk (default: CHUNK_SIZE)"},
			&cli.IntFlag{Name: "chunk-overlap", Usage: "characters shared by adjacent chunks (default: CHUNK_OVERLAP)"},
			&cli.IntFlag{Name: "concurrency", Usage: "parallel embedding requests (default: EMBEDDING_CONCURRENCY)"},
		},
		Action: runIngest,
	}
}

func runIngest(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := cfg.Log.NewLogger()

	opts := rag.BuildOptions{
		Glob:         cfg.Indexer.SourceGlob,
		ChunkSize:    cfg.Indexer.ChunkSize,
		ChunkOverlap: cfg.Indexer.ChunkOverlap,
		Path:         cfg.Retrieval.IndexPath,
		Model:        cfg.Embedding.Model,
		Concurrency:  cfg.Embedding.Concurrency,
		Logger:       logger,
	}
	if v := cmd.String("docs"); v != "" {
		opts.Glob = v
	}
	if v := cmd.String("out"); v != "" {
		opts.Path = v
	}
	if cmd.IsSet("chunk-size") {
		opts.ChunkSize = cmd.Int("chunk-size")
	}
	if cmd.IsSet("chunk-overlap") {
		opts.ChunkOverlap = cmd.Int("chunk-overlap")
	}
	if cmd.IsSet("concurrency") {
		opts.Concurrency = cmd.Int("concurrency")
	}

	if !cfg.Embedding.Enabled() {
		return cli.Exit("embedding credentials not configured (EMBEDDING_API_KEY or OPENAI_API_KEY)", 2)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Embedding.RetryMax
	rc.HTTPClient.Timeout = cfg.Embedding.Timeout
	rc.Logger = nil

	emb, err := cfg.Embedding.NewEmbedder(rc.StandardClient())
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	opts.Embedder = emb

	fmt.Printf("Loading documents from %s\n", opts.Glob)
	report, err := rag.Build(ctx, opts)
	if report.Files > 0 {
		fmt.Printf("%d files read, %d skipped, %d documents loaded\n", report.Files, report.Skipped, report.Documents)
	}
	if report.Chunks > 0 {
		fmt.Printf("%d chunks created\n", report.Chunks)
	}
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	fmt.Printf("Index saved to %s\n", report.Path)
	return nil
}
