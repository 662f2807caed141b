package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/catalog-scraper/internal/app"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		rootURL    = flag.String("url", cfg.Crawl.RootURL, "Catalog root URL")
		outputPath = flag.String("output", cfg.Crawl.OutputPath, "Result file")
		engine     = flag.String("engine", cfg.Crawl.Engine, "Page engine: browser or static")
		headless   = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		maxWorkers = flag.Int("max-workers", cfg.Crawl.MaxSubcategoryWorkers, "Concurrent subcategories per category (0 = unbounded)")
		indent     = flag.Bool("indent", cfg.Crawl.IndentOutput, "Indent the result file")
	)
	flag.Parse()

	cfg.Crawl.RootURL = *rootURL
	cfg.Crawl.OutputPath = *outputPath
	cfg.Crawl.Engine = *engine
	cfg.Crawl.MaxSubcategoryWorkers = *maxWorkers
	cfg.Crawl.IndentOutput = *indent
	cfg.Browser.Headless = *headless

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting catalog crawl", "url", cfg.Crawl.RootURL, "engine", cfg.Crawl.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Crawl failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	launcher, stop, err := app.NewLauncher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stop(); err != nil {
			logger.Error("Failed to stop engine", "error", err)
		}
	}()

	crawler := app.NewCrawler(cfg, launcher, storage.Sink(cfg), logger, "", 0)
	collection, err := crawler.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Crawl finished",
		"path", cfg.Crawl.OutputPath,
		"products", collection.Len(),
		"failures", len(collection.Failures()),
	)

	if storage.Relay != nil {
		published, err := storage.Relay.ProcessOnce(ctx)
		if err != nil {
			logger.Error("Failed to publish crawl event", "error", err)
		} else {
			logger.Info("Published outbox events", "count", published)
		}
	}

	return nil
}
