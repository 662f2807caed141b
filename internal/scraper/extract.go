package scraper

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/maltedev/catalog-scraper/internal/dom"
	"github.com/maltedev/catalog-scraper/internal/models"
)

var leadingFloat = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// ExtractLinks returns the href of every element matching selector, in
// document order, resolved against the page URL. Elements without an href
// are skipped.
func ExtractLinks(page dom.Page, selector string) ([]string, error) {
	elements, err := page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}

	base, err := url.Parse(page.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse page URL: %w", err)
	}

	links := make([]string, 0, len(elements))
	for _, el := range elements {
		href, err := el.GetAttribute("href")
		if err != nil {
			return nil, fmt.Errorf("failed to read href: %w", err)
		}
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			return nil, fmt.Errorf("invalid href %q: %w", href, err)
		}
		links = append(links, base.ResolveReference(ref).String())
	}

	return links, nil
}

// ExtractProductInfo reads name, description and URL. The name is the
// second caption heading; the first one holds the price.
func ExtractProductInfo(page dom.Page, headingSelector, descriptionSelector string) (models.ProductInfo, error) {
	headings, err := page.QuerySelectorAll(headingSelector)
	if err != nil {
		return models.ProductInfo{}, fmt.Errorf("failed to query name: %w", err)
	}
	if len(headings) < 2 {
		return models.ProductInfo{}, ErrNameNotFound
	}

	name, err := headings[1].InnerText()
	if err != nil {
		return models.ProductInfo{}, fmt.Errorf("failed to read name: %w", err)
	}

	descEl, err := page.QuerySelector(descriptionSelector)
	if err != nil {
		return models.ProductInfo{}, fmt.Errorf("failed to query description: %w", err)
	}
	if descEl == nil {
		return models.ProductInfo{}, ErrDescriptionNotFound
	}

	description, err := descEl.TextContent()
	if err != nil {
		return models.ProductInfo{}, fmt.Errorf("failed to read description: %w", err)
	}

	return models.ProductInfo{
		Name:        name,
		Description: description,
		URL:         page.URL(),
	}, nil
}

// ExtractPrice returns the caption price text verbatim.
func ExtractPrice(page dom.Page, selector string) (models.Price, error) {
	el, err := page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("failed to query price: %w", err)
	}
	if el == nil {
		return "", ErrPriceNotFound
	}

	text, err := el.TextContent()
	if err != nil {
		return "", fmt.Errorf("failed to read price: %w", err)
	}

	return models.Price(text), nil
}

// ExtractOptionPricesForSwatch maps every swatch label to the price shown
// on the page. Swatches are not clicked, so each label gets the page price
// as currently rendered.
func ExtractOptionPricesForSwatch(page dom.Page, swatchSelector, priceSelector string) (map[string]models.Price, error) {
	swatches, err := page.QuerySelectorAll(swatchSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to query swatches: %w", err)
	}

	options := make(map[string]models.Price, len(swatches))
	for _, swatch := range swatches {
		label, err := swatch.InnerText()
		if err != nil {
			return nil, fmt.Errorf("failed to read swatch label: %w", err)
		}

		price, err := ExtractPrice(page, priceSelector)
		if err != nil {
			return nil, err
		}

		options[strings.TrimSpace(label)] = price
	}

	return options, nil
}

// ExtractColors returns the option labels of a color selector without the
// leading "select a color" placeholder.
func ExtractColors(dropdown dom.Element, optionSelector string) ([]string, error) {
	options, err := dropdown.QuerySelectorAll(optionSelector)
	if err != nil {
		return nil, fmt.Errorf("failed to query color options: %w", err)
	}

	colors := make([]string, 0, len(options))
	for i, opt := range options {
		if i == 0 {
			continue
		}
		label, err := opt.InnerText()
		if err != nil {
			return nil, fmt.Errorf("failed to read color option: %w", err)
		}
		colors = append(colors, label)
	}

	return colors, nil
}

// ExtractNumberOfRatings parses the review count label. Text that does not
// start with a number yields NaN, not an error.
func ExtractNumberOfRatings(scope dom.Element, selector string) (models.RatingCount, error) {
	el, err := scope.QuerySelector(selector)
	if err != nil {
		return 0, fmt.Errorf("failed to query rating count: %w", err)
	}
	if el == nil {
		return 0, ErrRatingsNotFound
	}

	text, err := el.InnerText()
	if err != nil {
		return 0, fmt.Errorf("failed to read rating count: %w", err)
	}

	return models.RatingCount(parseRatingCount(text)), nil
}

// ExtractNumberOfStars counts the star icons inside the ratings block.
func ExtractNumberOfStars(scope dom.Element, ratingsSelector, starSelector string) (int, error) {
	ratings, err := scope.QuerySelector(ratingsSelector)
	if err != nil {
		return 0, fmt.Errorf("failed to query ratings: %w", err)
	}
	if ratings == nil {
		return 0, ErrRatingsNotFound
	}

	stars, err := ratings.QuerySelectorAll(starSelector)
	if err != nil {
		return 0, fmt.Errorf("failed to query stars: %w", err)
	}

	return len(stars), nil
}

// DetectVariantMode reports which variant presentation a product page uses.
func DetectVariantMode(page dom.Page, sel Selectors) (models.VariantMode, error) {
	dropdown, err := page.QuerySelector(sel.ColorDropdown)
	if err != nil {
		return "", fmt.Errorf("failed to query color dropdown: %w", err)
	}
	if dropdown != nil {
		return models.VariantModeDropdown, nil
	}

	swatches, err := page.QuerySelectorAll(sel.Swatch)
	if err != nil {
		return "", fmt.Errorf("failed to query swatches: %w", err)
	}
	if len(swatches) > 0 {
		return models.VariantModeSwatch, nil
	}

	return models.VariantModeNone, nil
}

// parseRatingCount drops the first " reviews" suffix and parses the longest
// numeric prefix, so "1 review" is 1 and "N/A" is NaN.
func parseRatingCount(text string) float64 {
	cleaned := strings.TrimSpace(strings.Replace(text, " reviews", "", 1))

	match := leadingFloat.FindString(cleaned)
	if match == "" {
		return math.NaN()
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}
