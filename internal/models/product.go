package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

var ErrInvalidProduct = errors.New("invalid product")

// Product is one extracted catalog product. The JSON layout matches the
// result.json artifact consumers already read.
type Product struct {
	Info            ProductInfo      `json:"product_info"`
	Options         map[string]Price `json:"options"`
	DefaultPrice    Price            `json:"default_price"`
	Colors          []string         `json:"colors"`
	NumberOfRatings RatingCount      `json:"number_of_ratings"`
	NumberOfStars   int              `json:"number_of_stars"`
}

type ProductInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Price is the price text exactly as shown on the page. The empty Price is
// the unset sentinel and encodes as the number 0.
type Price string

func (p Price) IsZero() bool {
	return p == ""
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("0"), nil
	}
	return json.Marshal(string(p))
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "0" || string(data) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = Price(s)
	return nil
}

// RatingCount is the parsed review count. Unparsable counts are NaN and
// encode as null.
type RatingCount float64

func (r RatingCount) IsNaN() bool {
	return math.IsNaN(float64(r))
}

func (r RatingCount) MarshalJSON() ([]byte, error) {
	f := float64(r)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func (r *RatingCount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = RatingCount(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = RatingCount(f)
	return nil
}

// VariantMode is how a product page presents its purchasable variants.
type VariantMode string

const (
	VariantModeNone     VariantMode = "none"
	VariantModeSwatch   VariantMode = "swatch"
	VariantModeDropdown VariantMode = "dropdown"
)

// NewProduct returns a product with the unset defaults: no options, no
// colors, unset default price, NaN rating count.
func NewProduct(info ProductInfo) Product {
	return Product{
		Info:            info,
		Options:         make(map[string]Price),
		Colors:          make([]string, 0),
		NumberOfRatings: RatingCount(math.NaN()),
	}
}

// Validate reports fields no extracted product can lack. An empty name or
// description is valid; the page may render it empty.
func (p *Product) Validate() error {
	var problems []error

	if p.Info.URL == "" {
		problems = append(problems, errors.New("url is required"))
	}
	if p.Options == nil {
		problems = append(problems, errors.New("options must not be nil"))
	}
	if p.Colors == nil {
		problems = append(problems, errors.New("colors must not be nil"))
	}
	if p.NumberOfStars < 0 {
		problems = append(problems, errors.New("number of stars cannot be negative"))
	}
	if !p.NumberOfRatings.IsNaN() && p.NumberOfRatings < 0 {
		problems = append(problems, errors.New("number of ratings cannot be negative"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProduct, errors.Join(problems...))
	}
	return nil
}
