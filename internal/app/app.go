// Package app wires configuration into the crawler and its optional
// storage backends. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/browser"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/dom"
	"github.com/maltedev/catalog-scraper/internal/output"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/redis/go-redis/v9"
)

// NewLauncher returns the page engine named by cfg.Crawl.Engine and a
// function releasing it.
func NewLauncher(cfg *config.Config) (dom.Launcher, func() error, error) {
	switch cfg.Crawl.Engine {
	case config.EngineStatic:
		opts := dom.DefaultStaticOptions()
		opts.Timeout = cfg.Browser.Timeout
		return dom.NewStaticLauncher(opts), func() error { return nil }, nil

	case config.EngineBrowser, "":
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
		opts.Locale = cfg.Browser.Locale

		rt, err := browser.NewRuntime(opts)
		if err != nil {
			return nil, nil, err
		}
		return rt, rt.Stop, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine %q", cfg.Crawl.Engine)
	}
}

// Storage holds the optional Postgres and Redis backends.
type Storage struct {
	DB       *database.DB
	Products *database.ProductRepository
	Relay    *database.Relay
	redis    *redis.Client
}

// OpenStorage connects the backends enabled in cfg. The returned Storage is
// never nil; its fields are nil for disabled backends.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	s := &Storage{}
	if !cfg.Database.Enabled {
		return s, nil
	}

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.DB = db
	s.Products = database.NewProductRepository(db, logger)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			db.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redis = client
		s.Relay = database.NewRelay(db, client, logger, database.RelayConfig{
			PollInterval: cfg.Redis.PollInterval,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
	}

	return s, nil
}

// Sink returns the file sink, plus the database sink when enabled.
func (s *Storage) Sink(cfg *config.Config) scraper.Sink {
	file := output.NewFileSink(cfg.Crawl.OutputPath, cfg.Crawl.IndentOutput)
	if s.Products == nil {
		return file
	}
	return output.MultiSink{file, s.Products}
}

func (s *Storage) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// NewCrawler builds a crawler for cfg, with per-call overrides.
func NewCrawler(cfg *config.Config, launcher dom.Launcher, sink scraper.Sink, logger *slog.Logger, rootURL string, maxWorkers int) *scraper.Crawler {
	if rootURL == "" {
		rootURL = cfg.Crawl.RootURL
	}
	if maxWorkers == 0 {
		maxWorkers = cfg.Crawl.MaxSubcategoryWorkers
	}

	opts := []scraper.Option{
		scraper.WithRootURL(rootURL),
		scraper.WithLogger(logger),
		scraper.WithMaxSubcategoryWorkers(maxWorkers),
	}
	if sink != nil {
		opts = append(opts, scraper.WithSink(sink))
	}
	return scraper.NewCrawler(launcher, opts...)
}
