package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/dom"
)

// SubcategoryWorker scrapes every product of one subcategory in its own
// browsing session.
type SubcategoryWorker struct {
	launcher  dom.Launcher
	extractor *ProductExtractor
	selectors Selectors
	logger    *slog.Logger
}

func NewSubcategoryWorker(launcher dom.Launcher, extractor *ProductExtractor, selectors Selectors, logger *slog.Logger) *SubcategoryWorker {
	return &SubcategoryWorker{
		launcher:  launcher,
		extractor: extractor,
		selectors: selectors,
		logger:    logger.With("component", "subcategory_worker"),
	}
}

// Run visits the subcategory, then every product link it lists, one after
// the other on the same page. A product that fails is recorded in the
// batch and skipped. Errors returned from Run come from launching the
// session or loading the subcategory itself.
func (w *SubcategoryWorker) Run(ctx context.Context, subcategoryURL string) (*Batch, error) {
	session, err := w.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			w.logger.Error("failed to close session", "url", subcategoryURL, "error", err)
		}
	}()

	page, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.Goto(ctx, subcategoryURL); err != nil {
		return nil, fmt.Errorf("failed to open subcategory: %w", err)
	}

	productLinks, err := ExtractLinks(page, w.selectors.ProductLink)
	if err != nil {
		return nil, fmt.Errorf("failed to extract product links: %w", err)
	}

	w.logger.Debug("found products", "url", subcategoryURL, "count", len(productLinks))

	batch := &Batch{SubcategoryURL: subcategoryURL}
	for _, link := range productLinks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		product, err := w.extractor.Extract(ctx, page, link)
		if err != nil {
			w.logger.Error("error parsing product", "url", link, "error", err)
			batch.Failures = append(batch.Failures, Failure{URL: link, Error: err.Error()})
			continue
		}
		batch.Products = append(batch.Products, *product)
	}

	w.logger.Info("scraped subcategory",
		"url", subcategoryURL,
		"products", len(batch.Products),
		"failures", len(batch.Failures),
	)

	return batch, nil
}
