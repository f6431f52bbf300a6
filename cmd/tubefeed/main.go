package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	postgresadapter "github.com/ericfisherdev/tubefeed/internal/adapter/driven/postgres"
	redisadapter "github.com/ericfisherdev/tubefeed/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/tubefeed/internal/adapter/driven/sqlite"
	youtubeadapter "github.com/ericfisherdev/tubefeed/internal/adapter/driven/youtube"
	httphandler "github.com/ericfisherdev/tubefeed/internal/adapter/driving/http"
	"github.com/ericfisherdev/tubefeed/internal/application"
	"github.com/ericfisherdev/tubefeed/internal/config"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (.env first, then environment; fail fast on invalid values).
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"fetch_interval", cfg.FetchInterval,
		"search_query", cfg.SearchQuery,
		"max_results", cfg.MaxResults,
		"api_keys", len(cfg.YouTubeAPIKeys),
		"redis", cfg.UsesRedis(),
		"postgres", cfg.UsesPostgres(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open SQLite (dual reader/writer with WAL mode). It backs the video
	// store and rotation state unless Postgres or Redis replace them.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	var videoStore driven.VideoStore = sqliteadapter.NewVideoRepo(db)
	if cfg.UsesPostgres() {
		pg, err := postgresadapter.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		videoStore = pg
		slog.Info("postgres video store connected")
	}

	var kv driven.KVStore = sqliteadapter.NewKVRepo(db)
	if cfg.UsesRedis() {
		rs, err := redisadapter.NewKVStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		kv = rs
		slog.Info("redis rotation store connected")
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("error closing rotation store", "error", closeErr)
		}
	}()

	searchClient := youtubeadapter.NewClient()
	if cfg.YouTubeEndpoint != "" {
		searchClient = youtubeadapter.NewClientWithHTTPClient(&http.Client{Timeout: 30 * time.Second}, cfg.YouTubeEndpoint)
	}

	// 6. Initialize the key pool. Existing shared state is reused as-is.
	if !cfg.HasAPIKeys() {
		slog.Warn("no youtube api keys configured, ingest cycles will fail until keys are provided")
	}
	keyPool := application.NewKeyPool(kv, cfg.YouTubeAPIKeys, cfg.DailyQuota,
		application.WithNamespace(cfg.KeyNamespace),
	)
	if err := keyPool.Init(ctx); err != nil {
		return err
	}

	// 7. Create and start the ingest scheduler.
	watermark := application.NewWatermark(videoStore)
	ingestSvc := application.NewIngestService(keyPool, searchClient, videoStore, watermark, application.IngestConfig{
		SearchQuery:     cfg.SearchQuery,
		MaxResults:      cfg.MaxResults,
		QueryCost:       cfg.QueryCost,
		InitialLookback: cfg.InitialLookback,
	})
	scheduler := application.NewScheduler(ingestSvc, cfg.FetchInterval, cfg.CycleTimeout)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	// 8. Create HTTP handler and register API routes.
	videoSvc := application.NewVideoService(videoStore)
	apiHandler := httphandler.NewHandler(videoSvc, keyPool, scheduler, watermark, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default(), httphandler.RateLimit{
		PerSecond: cfg.RateLimit,
		Burst:     cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// 9. Log startup complete.
	slog.Info("tubefeed started",
		"listen_addr", cfg.ListenAddr,
		"fetch_interval", scheduler.Interval(),
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown: drain HTTP, then let an in-flight cycle finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	<-schedulerDone

	// 12. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

// setupLogger installs the default slog logger in the configured format and level.
func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
