package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/catalog-scraper/internal/dom"
)

// Crawler walks the catalog from the root page down to every product.
type Crawler struct {
	launcher   dom.Launcher
	rootURL    string
	selectors  Selectors
	sink       Sink
	maxWorkers int
	logger     *slog.Logger
}

type Option func(*Crawler)

func WithRootURL(rootURL string) Option {
	return func(c *Crawler) { c.rootURL = rootURL }
}

func WithSelectors(selectors Selectors) Option {
	return func(c *Crawler) { c.selectors = selectors }
}

func WithSink(sink Sink) Option {
	return func(c *Crawler) { c.sink = sink }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithMaxSubcategoryWorkers bounds how many subcategories of one category
// are scraped at the same time. Zero means no bound.
func WithMaxSubcategoryWorkers(n int) Option {
	return func(c *Crawler) { c.maxWorkers = n }
}

func NewCrawler(launcher dom.Launcher, opts ...Option) *Crawler {
	c := &Crawler{
		launcher:  launcher,
		rootURL:   DefaultRootURL,
		selectors: DefaultSelectors(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "crawler")
	return c
}

// Crawl visits categories one after another. Within a category all
// subcategories run concurrently, each in its own session. The returned
// collection holds every product that was extracted; product-level
// failures are kept in it and do not fail the crawl.
func (c *Crawler) Crawl(ctx context.Context) (*Collection, error) {
	start := time.Now()
	c.logger.Info("starting crawl", "url", c.rootURL)

	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.logger.Error("failed to close session", "error", err)
		}
	}()

	page, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.Goto(ctx, c.rootURL); err != nil {
		return nil, fmt.Errorf("failed to open root page: %w", err)
	}

	categoryLinks, err := ExtractLinks(page, c.selectors.CategoryLink)
	if err != nil {
		return nil, fmt.Errorf("failed to extract category links: %w", err)
	}

	c.logger.Info("found categories", "count", len(categoryLinks))

	extractor := NewProductExtractor(c.selectors, c.logger)
	worker := NewSubcategoryWorker(c.launcher, extractor, c.selectors, c.logger)
	orchestrator := NewCategoryOrchestrator(worker, c.selectors, c.maxWorkers, c.logger)

	collection := NewCollection()
	for _, link := range categoryLinks {
		batches, err := orchestrator.Run(ctx, page, link)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", link, err)
		}
		for _, batch := range batches {
			collection.Add(batch)
		}
	}

	c.logger.Info("scraping complete",
		"categories", len(categoryLinks),
		"subcategories", collection.Batches(),
		"products", collection.Len(),
		"failures", len(collection.Failures()),
		"duration", time.Since(start),
	)

	return collection, nil
}

// Run crawls and hands the products to the sink. A sink error is logged
// and does not fail the run.
func (c *Crawler) Run(ctx context.Context) (*Collection, error) {
	collection, err := c.Crawl(ctx)
	if err != nil {
		return nil, err
	}

	if c.sink != nil {
		if err := c.sink.Write(ctx, collection.Products()); err != nil {
			c.logger.Error("failed to write results", "error", err)
		}
	}

	return collection, nil
}
