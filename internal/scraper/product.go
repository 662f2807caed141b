package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-scraper/internal/dom"
	"github.com/maltedev/catalog-scraper/internal/models"
)

// ProductExtractor builds one Product from one product page.
type ProductExtractor struct {
	selectors Selectors
	logger    *slog.Logger
}

func NewProductExtractor(selectors Selectors, logger *slog.Logger) *ProductExtractor {
	return &ProductExtractor{
		selectors: selectors,
		logger:    logger.With("component", "product_extractor"),
	}
}

// Extract navigates page to productURL and reads every product field.
//
// Swatch extraction always runs; a page without swatches simply yields an
// empty option map. Colors and the default price are only read when the
// color dropdown is present. Ratings and stars come from the common scope
// when the page has one; otherwise the rating count stays NaN.
func (pe *ProductExtractor) Extract(ctx context.Context, page dom.Page, productURL string) (*models.Product, error) {
	if err := page.Goto(ctx, productURL); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	swatchContainer, err := page.QuerySelector(pe.selectors.SwatchContainer)
	if err != nil {
		return nil, fmt.Errorf("failed to query swatch container: %w", err)
	}

	common, err := page.QuerySelector(pe.selectors.CommonScope)
	if err != nil {
		return nil, fmt.Errorf("failed to query common scope: %w", err)
	}

	info, err := ExtractProductInfo(page, pe.selectors.CaptionHeading, pe.selectors.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to extract product info: %w", err)
	}

	product := models.NewProduct(info)

	options, err := ExtractOptionPricesForSwatch(page, pe.selectors.Swatch, pe.selectors.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to extract swatch prices: %w", err)
	}
	product.Options = options

	dropdown, err := page.QuerySelector(pe.selectors.ColorDropdown)
	if err != nil {
		return nil, fmt.Errorf("failed to query color dropdown: %w", err)
	}
	if dropdown != nil {
		colors, err := ExtractColors(dropdown, pe.selectors.DropdownOption)
		if err != nil {
			return nil, fmt.Errorf("failed to extract colors: %w", err)
		}
		product.Colors = colors

		price, err := ExtractPrice(page, pe.selectors.Price)
		if err != nil {
			return nil, fmt.Errorf("failed to extract default price: %w", err)
		}
		product.DefaultPrice = price
	}

	if common != nil {
		ratings, err := ExtractNumberOfRatings(common, pe.selectors.RatingCount)
		if err != nil {
			return nil, fmt.Errorf("failed to extract number of ratings: %w", err)
		}
		product.NumberOfRatings = ratings

		stars, err := ExtractNumberOfStars(common, pe.selectors.Ratings, pe.selectors.Star)
		if err != nil {
			return nil, fmt.Errorf("failed to extract number of stars: %w", err)
		}
		product.NumberOfStars = stars
	} else {
		pe.logger.Warn("common scope not found, ratings left unset", "url", productURL)
	}

	if mode, err := DetectVariantMode(page, pe.selectors); err == nil {
		pe.logger.Debug("extracted product",
			"url", productURL,
			"name", product.Info.Name,
			"mode", mode,
			"swatch_container", swatchContainer != nil,
			"options", len(product.Options),
			"colors", len(product.Colors),
		)
	}

	if err := product.Validate(); err != nil {
		return nil, err
	}

	return &product, nil
}
