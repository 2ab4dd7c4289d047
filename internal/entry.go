// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/debounce"
	"github.com/starford/notegraph/internal/embedding"
	"github.com/starford/notegraph/internal/graphservice"
	"github.com/starford/notegraph/internal/graphstore"
	"github.com/starford/notegraph/internal/graphstore/neo4jstore"
	"github.com/starford/notegraph/internal/graphstore/sqlitestore"
	"github.com/starford/notegraph/internal/graphsync"
	"github.com/starford/notegraph/internal/loader"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/parser"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/watcher"
)

// components is the wiring shared by every command.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	vault    *storage.FS
	store    graphstore.Store
	embedder embedding.Embedder
	engine   *graphsync.Engine
	svc      *graphservice.Service
}

func (c *components) Close() {
	if err := c.store.Close(); err != nil {
		c.logger.Error("close graph store", slog.String("error", err.Error()))
	}
}

// setup builds the logger, vault, graph store, embedder, engine and query
// service from the options. extra engine options are appended last.
func setup(ctx context.Context, opts []Option, extra ...graphsync.Option) (*components, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("graph_backend", cfg.Graph.Backend),
		slog.Bool("embedding", cfg.Embedding.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	vault, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.Extension)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	store, err := openStore(ctx, cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("init graph store: %w", err)
	}

	c := &components{cfg: cfg, logger: logger, vault: vault, store: store}

	if cfg.Embedding.Enabled {
		c.embedder = embedding.NewOpenAI(embedding.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
	}
	if cfg.Vector.Enabled {
		if err := store.EnsureVectorIndex(ctx, graphstore.VectorIndex{
			Dimension:      cfg.Embedding.Dimension,
			Similarity:     cfg.Vector.Similarity,
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
		}); err != nil {
			c.Close()
			return nil, fmt.Errorf("init vector index: %w", err)
		}
	}

	loaderOpts := []loader.Option{
		loader.WithChunker(parser.NewChunker(cfg.Sync.MaxChunkSize)),
		loader.WithLogger(logger),
	}
	svcOpts := []graphservice.Option{graphservice.WithExtension(cfg.Vault.Extension)}
	if c.embedder != nil {
		loaderOpts = append(loaderOpts, loader.WithEmbedder(c.embedder))
		svcOpts = append(svcOpts, graphservice.WithEmbedder(c.embedder))
	}

	engineOpts := append([]graphsync.Option{
		graphsync.WithLogger(logger),
		graphsync.WithExtension(cfg.Vault.Extension),
		graphsync.WithReconcileOnOutOfSync(cfg.Sync.ReconcileOnOutOfSync),
	}, extra...)
	c.engine = graphsync.New(store, loader.New(vault, loaderOpts...), vault, engineOpts...)
	c.svc = graphservice.New(store, vault.Root(), svcOpts...)
	return c, nil
}

func openStore(ctx context.Context, cfg GraphConfig) (graphstore.Store, error) {
	switch cfg.Backend {
	case BackendNeo4j:
		return neo4jstore.Open(ctx, neo4jstore.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
	default:
		return sqlitestore.Open(cfg.SQLite.Path)
	}
}

// Run starts the watcher and the HTTP server and blocks until ctx is
// cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := setup(ctx, opts, graphsync.WithChangeFunc(func(ch graphsync.Change) {
		broker.PublishChange(string(ch.Kind), ch.Path, ch.DestPath)
	}))
	if err != nil {
		return err
	}
	defer c.Close()
	cfg, logger := c.cfg, c.logger

	if cfg.Sync.ReconcileOnStart {
		st, err := c.engine.Reconcile(ctx)
		if err != nil {
			logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
		} else {
			logger.Info("initial reconcile done",
				slog.Int("created", st.Created),
				slog.Int("modified", st.Modified),
				slog.Int("deleted", st.Deleted),
				slog.Int("reaped", st.Reaped),
				slog.Int("failed", st.Failed))
		}
	}

	apiRouter := api.NewRouter(c.svc, c.engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.svc.Stats(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	w := watcher.New(c.vault.Root(), c.engine,
		watcher.WithExtension(cfg.Vault.Extension),
		watcher.WithDebouncer(debounce.New(cfg.Sync.Debounce, cfg.Sync.EvictAfter)),
		watcher.WithMoveWindow(cfg.Sync.MoveWindow),
		watcher.WithLogger(logger),
	)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher.
	g.Go(func() error {
		if err := w.Run(gCtx); err != nil {
			return fmt.Errorf("watcher error: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Backfill loads every document in the vault into the graph. With rebuild
// the graph is cleared first.
func Backfill(ctx context.Context, rebuild bool, opts ...Option) (graphsync.Stats, error) {
	c, err := setup(ctx, opts)
	if err != nil {
		return graphsync.Stats{}, err
	}
	defer c.Close()

	if rebuild {
		return c.engine.Rebuild(ctx)
	}
	return c.engine.Backfill(ctx)
}

// Reconcile repairs drift between the graph and the vault on disk.
func Reconcile(ctx context.Context, opts ...Option) (graphsync.Stats, error) {
	c, err := setup(ctx, opts)
	if err != nil {
		return graphsync.Stats{}, err
	}
	defer c.Close()

	return c.engine.Reconcile(ctx)
}

// ServeMCP serves the graph query tools over stdio. Logs must not go to
// stdout; callers pass WithLogOutput(os.Stderr).
func ServeMCP(ctx context.Context, opts ...Option) error {
	c, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.svc, mcpserver.WithReconciler(c.engine))
	c.logger.Info("MCP server listening on stdio")
	return srv.ServeStdio()
}

// Query runs a vector similarity query against the graph.
func Query(ctx context.Context, text string, topK int, target graphstore.VectorTarget, opts ...Option) ([]graphstore.ScoredNode, error) {
	c, err := setup(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.svc.Similar(ctx, text, topK, target)
}
