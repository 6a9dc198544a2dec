// Package main is the entrypoint for the steelsched API server.
package main

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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/steelsched/internal/ai"
	"github.com/kiranshivaraju/steelsched/internal/api"
	"github.com/kiranshivaraju/steelsched/internal/api/handler"
	mw "github.com/kiranshivaraju/steelsched/internal/api/middleware"
	"github.com/kiranshivaraju/steelsched/internal/api/response"
	"github.com/kiranshivaraju/steelsched/internal/blob"
	"github.com/kiranshivaraju/steelsched/internal/cache"
	"github.com/kiranshivaraju/steelsched/internal/config"
	"github.com/kiranshivaraju/steelsched/internal/events"
	"github.com/kiranshivaraju/steelsched/internal/extract"
	"github.com/kiranshivaraju/steelsched/internal/jobs"
	"github.com/kiranshivaraju/steelsched/internal/pages"
	"github.com/kiranshivaraju/steelsched/internal/store"
	"github.com/kiranshivaraju/steelsched/internal/tabular"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

const (
	serviceName     = "steelsched"
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "blob_backend", cfg.Blob.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Blob storage
	blobs, err := newBlobStore(cfg.Blob, pool)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	// 6. Extraction backend; none configured means the fallback extractor
	backend, err := ai.NewBackend(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI backend: %w", err)
	}
	engine := extract.NewEngine(backend, logger,
		extract.WithTimeout(cfg.AI.InferenceTimeout),
		extract.WithPromptBudget(cfg.Pipeline.PromptBudgetChars),
		extract.WithRateLimit(cfg.AI.RequestsPerSecond),
		extract.WithLogger(logger),
	)
	if backend != nil {
		slog.Info("AI backend initialized", "provider", backend.Name(), "model", backend.Model())
	} else {
		slog.Warn("no AI backend configured, using fallback extraction")
	}

	// 7. Tabular parser
	aliases := tabular.DefaultAliases()
	if cfg.Pipeline.AliasesFile != "" {
		if aliases, err = tabular.LoadAliases(cfg.Pipeline.AliasesFile); err != nil {
			return fmt.Errorf("load header aliases: %w", err)
		}
	}

	// 8. Job service
	svc := jobs.NewService(jobs.Deps{
		Store:  store.NewPostgresStore(pool),
		Blobs:  blobs,
		Cache:  redisCache,
		Events: events.NewChannelPublisher(redisCache),
		Pages:  pages.FromConfig(cfg.OCR, logger),
		Engine: engine,
		Parser: tabular.NewParser(aliases),
	}, jobs.Config{
		ArtifactBucket: cfg.Blob.ArtifactBucket,
		ChunkBudget:    cfg.Pipeline.ChunkBudgetChars,
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		Logger:         logger,
	})

	go svc.RunReaper(ctx, cfg.Pipeline.ReapInterval, cfg.Pipeline.StaleAfter)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		RootHandler:        handler.NewRootHandler(serviceName, version),
		HealthHandler:      healthHandler(store.NewPostgresStore(pool), redisCache, blobs, cfg.Blob.ArtifactBucket),
		SubmitHandler:      handler.NewSubmitHandler(svc),
		RunHandler:         handler.NewRunHandler(svc),
		GetJobHandler:      handler.NewGetJobHandler(svc),
		StatusHandler:      handler.NewStatusHandler(svc),
		ArtifactHandler:    handler.NewArtifactHandler(svc),
		ResultHandler:      handler.NewResultHandler(svc),
		GetImportHandler:   handler.NewGetImportHandler(svc),
		ImportItemsHandler: handler.NewListImportItemsHandler(svc),
		ParseHandler:       handler.NewParseHandler(svc, int64(cfg.Server.MaxUploadMB)<<20),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		// Run and parse hold the connection for a whole attempt.
		WriteTimeout: cfg.AI.InferenceTimeout + 2*time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newBlobStore selects the configured blob backend.
func newBlobStore(cfg config.BlobConfig, pool *pgxpool.Pool) (blob.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return blob.NewPostgresStore(pool), nil
	case "fs", "":
		return blob.NewFSStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database, cache and blob storage connectivity.
func healthHandler(db, c pinger, blobs blob.Store, bucket string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"blob":     "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if _, err := blobs.List(r.Context(), bucket, "artifacts/"); err != nil {
			checks["blob"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok" || checks["blob"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, models.ErrCodeDegraded,
				jobs.Message(models.ErrCodeDegraded), checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
