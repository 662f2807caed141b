package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var (
	ErrNameNotFound        = errors.New("product name not found")
	ErrDescriptionNotFound = errors.New("product description not found")
	ErrPriceNotFound       = errors.New("price not found")
	ErrRatingsNotFound     = errors.New("ratings not found")
)

// DefaultRootURL is the entry page of the test catalog.
const DefaultRootURL = "https://webscraper.io/test-sites/e-commerce/allinone"

// Selectors are the CSS selectors used at every level of the catalog.
type Selectors struct {
	CategoryLink    string
	SubcategoryLink string
	ProductLink     string

	CaptionHeading string
	Description    string
	Price          string

	SwatchContainer string
	Swatch          string
	ColorDropdown   string
	DropdownOption  string

	CommonScope string
	Ratings     string
	RatingCount string
	Star        string
}

func DefaultSelectors() Selectors {
	return Selectors{
		CategoryLink:    ".category-link",
		SubcategoryLink: ".subcategory-link",
		ProductLink:     ".title",

		CaptionHeading: ".caption > h4",
		Description:    ".caption > .description",
		Price:          ".caption > .price",

		SwatchContainer: ".swatches",
		Swatch:          ".swatches > .swatch",
		ColorDropdown:   `[aria-label="color"]`,
		DropdownOption:  "option",

		CommonScope: ".col-lg-10",
		Ratings:     ".ratings",
		RatingCount: ".ratings > p",
		Star:        "span",
	}
}

// Sink receives the final collection of a crawl.
type Sink interface {
	Write(ctx context.Context, products []models.Product) error
}
