package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/api"
	"github.com/maltedev/catalog-scraper/internal/app"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	launcher, stop, err := app.NewLauncher(cfg)
	if err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stop(); err != nil {
			logger.Error("failed to stop engine", "error", err)
		}
	}()

	if storage.Relay != nil {
		go runRelay(ctx, storage.Relay, logger)
	}

	// With a database, each job stores its products under its own ID as run
	// ID and the manager reads them back from there.
	manager := jobs.NewManager(func(jobID string, req jobs.Request) jobs.Runner {
		var sink scraper.Sink
		if storage.Products != nil {
			runID, err := uuid.Parse(jobID)
			if err != nil {
				runID = uuid.New()
			}
			sink = storage.Products.ForRun(runID)
		}
		return app.NewCrawler(cfg, launcher, sink, logger, req.RootURL, req.MaxSubcategoryWorkers)
	}, 16, logger)

	routerOpts := api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins}
	if storage.Products != nil {
		manager.SetProductStore(storage.Products)
		routerOpts.Products = storage.Products
	}
	if storage.Relay != nil {
		routerOpts.Outbox = storage.Relay
	}
	go manager.StartWorker(ctx)

	handler := api.NewRouter(api.NewHandlers(manager, logger), routerOpts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "engine", cfg.Crawl.Engine)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

type relay interface {
	Start(ctx context.Context) error
}

// runRelay blocks until the relay stops, logging anything but cancellation.
func runRelay(ctx context.Context, r relay, logger *slog.Logger) {
	if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay stopped with error", "error", err)
	}
}
