package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/dom"
	"golang.org/x/sync/errgroup"
)

// CategoryOrchestrator fans out one SubcategoryWorker per subcategory of a
// category and joins them.
type CategoryOrchestrator struct {
	worker     *SubcategoryWorker
	selectors  Selectors
	maxWorkers int
	logger     *slog.Logger
}

// NewCategoryOrchestrator creates an orchestrator. maxWorkers <= 0 runs
// every subcategory of a category at once.
func NewCategoryOrchestrator(worker *SubcategoryWorker, selectors Selectors, maxWorkers int, logger *slog.Logger) *CategoryOrchestrator {
	return &CategoryOrchestrator{
		worker:     worker,
		selectors:  selectors,
		maxWorkers: maxWorkers,
		logger:     logger.With("component", "category_orchestrator"),
	}
}

// Run loads the category on page, discovers its subcategories and scrapes
// them concurrently. It returns only after every worker has finished. The
// first worker error cancels the remaining workers and is returned.
// Batches are in subcategory discovery order.
func (c *CategoryOrchestrator) Run(ctx context.Context, page dom.Page, categoryURL string) ([]*Batch, error) {
	if err := page.Goto(ctx, categoryURL); err != nil {
		return nil, fmt.Errorf("failed to open category: %w", err)
	}

	subcategoryLinks, err := ExtractLinks(page, c.selectors.SubcategoryLink)
	if err != nil {
		return nil, fmt.Errorf("failed to extract subcategory links: %w", err)
	}

	c.logger.Info("scraping category",
		"url", categoryURL,
		"subcategories", len(subcategoryLinks),
	)

	batches := make([]*Batch, len(subcategoryLinks))

	g, gctx := errgroup.WithContext(ctx)
	if c.maxWorkers > 0 {
		g.SetLimit(c.maxWorkers)
	}

	for i, link := range subcategoryLinks {
		i, link := i, link
		g.Go(func() error {
			batch, err := c.worker.Run(gctx, link)
			if err != nil {
				return fmt.Errorf("subcategory %s: %w", link, err)
			}
			batches[i] = batch
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return batches, nil
}
