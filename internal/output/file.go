package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

// DefaultPath is where the one-shot crawler writes its results.
const DefaultPath = "result.json"

// FileSink writes the products of a crawl as one JSON array.
type FileSink struct {
	path   string
	indent bool
}

func NewFileSink(path string, indent bool) *FileSink {
	if path == "" {
		path = DefaultPath
	}
	return &FileSink{path: path, indent: indent}
}

func (s *FileSink) Write(ctx context.Context, products []models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if products == nil {
		products = []models.Product{}
	}

	var (
		data []byte
		err  error
	)
	if s.indent {
		data, err = json.MarshalIndent(products, "", "  ")
	} else {
		data, err = json.Marshal(products)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Write to temp file first so readers never see a partial array
	tmpFile := s.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpFile, err)
	}

	if err := os.Rename(tmpFile, s.path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmpFile, err)
	}

	return nil
}

// MultiSink hands the same products to every sink in order. All sinks are
// attempted; their errors are joined.
type MultiSink []scraper.Sink

func (m MultiSink) Write(ctx context.Context, products []models.Product) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, products); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
