package scraper

import (
	"encoding/json"
	"sync"

	"github.com/maltedev/catalog-scraper/internal/models"
)

// Failure records a product that could not be extracted.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Batch is what one subcategory worker produced, in product visit order.
type Batch struct {
	SubcategoryURL string
	Products       []models.Product
	Failures       []Failure
}

// Collection accumulates the batches of a whole crawl. It is safe for
// concurrent use.
type Collection struct {
	mu       sync.Mutex
	products []models.Product
	failures []Failure
	batches  int
}

func NewCollection() *Collection {
	return &Collection{
		products: make([]models.Product, 0),
	}
}

// Add appends a batch, keeping the batch's internal order.
func (c *Collection) Add(b *Batch) {
	if b == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.products = append(c.products, b.Products...)
	c.failures = append(c.failures, b.Failures...)
	c.batches++
}

func (c *Collection) Products() []models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Collection) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Failure, len(c.failures))
	copy(out, c.failures)
	return out
}

func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.products)
}

// Batches returns how many subcategory batches were merged.
func (c *Collection) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// MarshalJSON encodes the collection as the plain product array.
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Products())
}
