package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/wa-mentor/backend/internal/config"
	"github.com/zhouzirui/wa-mentor/backend/internal/handler"
	"github.com/zhouzirui/wa-mentor/backend/internal/handler/webhook"
	"github.com/zhouzirui/wa-mentor/backend/internal/model/persona"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/ai"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/chat"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/conversation"
	"github.com/zhouzirui/wa-mentor/backend/internal/service/rag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := cfg.Log.NewLogger()
	if envErr != nil {
		logger.WithError(envErr).Debug("no .env file loaded, using process environment only")
	}

	personaStore, active, err := loadPersonas(cfg.Persona)
	if err != nil {
		logger.WithError(err).Fatal("failed to load personas")
	}
	logger.WithField("persona", active.ID).Info("persona selected")

	sessions := chat.NewService(chat.Options{
		MaxMessages:    cfg.Session.MaxMessages,
		MaxSessions:    cfg.Session.MaxSessions,
		TTL:            cfg.Session.TTL,
		SweepHighWater: cfg.Session.SweepHighWater,
	})

	var aiService *ai.Service
	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err == nil {
			aiService, err = ai.NewService(ctx, chatModel, ai.Options{
				Timeout:     cfg.AI.Timeout,
				ReplyBudget: cfg.Retrieval.ReplyLengthBudget,
				Logger:      logger,
			})
		}
		if err != nil {
			logger.WithError(err).Warn("failed to initialize completion provider, every reply will be the apology")
		} else {
			logger.WithField("provider", cfg.AI.Provider).Info("completion provider initialized")
		}
	} else {
		logger.WithField("provider", cfg.AI.Provider).Warn("completion provider credentials not configured, every reply will be the apology")
	}

	index := rag.NewIndex(rag.IndexOptions{
		Path:  cfg.Retrieval.IndexPath,
		Model: cfg.Embedding.Model,
		Embedder: func() (embedding.Embedder, error) {
			if !cfg.Embedding.Enabled() {
				return nil, errors.New("embedding credentials not configured")
			}
			return cfg.Embedding.NewEmbedder(nil)
		},
		Logger: logger,
	})

	pipeline := conversation.NewService(
		sessions,
		active,
		rag.NewRetriever(index, cfg.Retrieval.ChunkTextBudget),
		aiService,
		conversation.Options{
			HistoryWindow: cfg.Session.HistoryWindow,
			RetrievalK:    cfg.Retrieval.K,
			Logger:        logger,
		},
	)

	router := handler.NewRouter(handler.Dependencies{
		Responder: pipeline,
		Sessions:  sessions,
		Index:     index,
		Personas:  personaStore,
		PersonaID: active.ID,
		Probe: webhook.Probe{
			TwilioConfigured:    cfg.Twilio.Configured(),
			AIConfigured:        aiService != nil,
			AIProvider:          cfg.AI.Provider,
			EmbeddingConfigured: cfg.Embedding.Enabled(),
			Persona:             active.ID,
		},
		Logger: logger,
	})

	startServer(ctx, logger, cfg.Server, router)
}

func loadPersonas(cfg config.PersonaConfig) (persona.Store, persona.Persona, error) {
	items := persona.Seed()
	if cfg.File != "" {
		custom, err := persona.LoadFile(cfg.File)
		if err != nil {
			return nil, persona.Persona{}, err
		}
		items = persona.Merge(items, custom)
	}

	store := persona.NewMemoryStore(items)
	active, ok := store.FindByID(cfg.ID)
	if !ok {
		return nil, persona.Persona{}, errors.New("unknown persona: " + cfg.ID)
	}
	return store, active, nil
}

func startServer(ctx context.Context, logger *logrus.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("WhatsApp mentor backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
