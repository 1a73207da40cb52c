package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"qarag/app/agent"
	"qarag/app/api"
	"qarag/app/config"
	"qarag/app/middleware"
	"qarag/model"
	"qarag/pipeline"
	"qarag/store"

	"github.com/gofiber/fiber/v2"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Store       store.Storer
	Embedder    model.Embedder
	Synthesizer pipeline.Synthesizer
	Formatter   pipeline.ContextFormatter
}

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *fiber.App
	store  store.Storer
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Init opens the configured backend and builds the pipeline on it.
func (s *Server) Init(ctx context.Context) error {
	st, err := s.openStore(ctx)
	if err != nil {
		return err
	}

	ollama := model.NewOllamaEmbedder(s.cfg.Embedder, s.logger)
	embedder, err := model.NewCachedEmbedder(ollama, s.cfg.Embedder.CacheSize, s.logger)
	if err != nil {
		_ = st.Close()
		return err
	}

	prompts := agent.NewPromptBuilder(agent.NewTokenCounter(s.logger), s.cfg.LLM.ContextTokens)
	s.store = st
	s.app = NewApp(s.cfg, s.logger, Deps{
		Store:       st,
		Embedder:    embedder,
		Synthesizer: agent.NewOllamaGenerator(s.cfg.LLM, prompts, s.logger),
		Formatter:   prompts,
	})
	return nil
}

func (s *Server) openStore(ctx context.Context) (store.Storer, error) {
	if s.cfg.Backend == "memory" {
		s.logger.Warn("using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), nil
	}

	pg, err := store.NewPostgresStore(ctx, s.cfg.PostgresDSN(), s.cfg.EmbeddingDim, s.logger)
	if err != nil {
		return nil, fmt.Errorf("error to connect to Postgres database: %w", err)
	}
	if err := pg.Init(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("error to create tables: %w", err)
	}
	return pg, nil
}

// NewApp wires the pipeline components and registers the routes.
func NewApp(cfg *config.Config, logger *slog.Logger, deps Deps) *fiber.App {
	var (
		cache     = pipeline.NewSemanticCache(deps.Embedder, deps.Store, cfg.Pipeline.SimilarityThreshold, cfg.Pipeline.CacheLookupTimeout, logger)
		retriever = pipeline.NewRetriever(deps.Embedder, deps.Store, logger)
		orch      = pipeline.NewOrchestrator(cache, retriever, deps.Synthesizer, deps.Store, pipeline.Options{
			TopK:      cfg.Pipeline.TopK,
			Formatter: deps.Formatter,
			Logger:    logger,
		})
		history = pipeline.NewHistory(deps.Store, logger)
		batch   = pipeline.NewBatch(orch, history, cfg.Pipeline.BatchConcurrency, logger)

		app            = fiber.New(fiber.Config{ErrorHandler: api.NewErrorHandler(logger)})
		checkHandler   = api.NewCheckHandler(deps.Store)
		configHandler  = api.NewConfigHandler(cfg.Pipeline, cfg.LLM, cfg.Embedder)
		requestHandler = api.NewRequestHandler(orch, history, batch, deps.Store)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	app.Use(middleware.RequestLogger(logger))

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Get("/config", configHandler.HandleGetConfig)
	apiv1.Post("/ask", requestHandler.HandleAsk)
	apiv1.Post("/batch", requestHandler.HandleBatch)
	apiv1.Post("/sessions", requestHandler.HandleCreateSession)
	apiv1.Get("/sessions", requestHandler.HandleListSessions)
	apiv1.Get("/sessions/:id/history", requestHandler.HandleSessionHistory)
	apiv1.Get("/questions/:id", requestHandler.HandleGetQuestion)
	apiv1.Post("/questions/:id/accept", requestHandler.HandleAccept)
	apiv1.Post("/questions/:id/edit", requestHandler.HandleEdit)
	apiv1.Get("/history/global", requestHandler.HandleGlobalHistory)

	return app
}

func (s *Server) Run() error {
	if s.app == nil {
		return fmt.Errorf("server is not initialised")
	}
	s.logger.Info("server_starting", "addr", s.cfg.ServerAddr, "backend", s.cfg.Backend)
	return s.app.Listen(s.cfg.ServerAddr)
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			s.logger.Error("server_shutdown_failed", "error", err)
		}
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	s.logger.Info("server stopped")
}
