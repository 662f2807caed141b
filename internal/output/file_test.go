package output

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProducts() []models.Product {
	swatch := models.NewProduct(models.ProductInfo{
		Name:        "Memory card",
		Description: "Fast SD card",
		URL:         "https://example.com/product/1",
	})
	swatch.Options = map[string]models.Price{"128": "$24.99"}
	swatch.NumberOfRatings = 8
	swatch.NumberOfStars = 3

	plain := models.NewProduct(models.ProductInfo{Name: "Laptop", URL: "https://example.com/product/2"})

	return []models.Product{swatch, plain}
}

func TestFileSinkWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	sink := NewFileSink(path, false)

	require.NoError(t, sink.Write(context.Background(), sampleProducts()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{
			"product_info": {"name": "Memory card", "description": "Fast SD card", "url": "https://example.com/product/1"},
			"options": {"128": "$24.99"},
			"default_price": 0,
			"colors": [],
			"number_of_ratings": 8,
			"number_of_stars": 3
		},
		{
			"product_info": {"name": "Laptop", "description": "", "url": "https://example.com/product/2"},
			"options": {},
			"default_price": 0,
			"colors": [],
			"number_of_ratings": null,
			"number_of_stars": 0
		}
	]`, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkWriteEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, NewFileSink(path, true).Write(context.Background(), nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestFileSinkDefaultPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, NewFileSink("", false).Write(context.Background(), nil))
	_, err = os.Stat(filepath.Join(dir, DefaultPath))
	assert.NoError(t, err)
}

func TestFileSinkReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, NewFileSink(path, true).Write(context.Background(), sampleProducts()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var products []models.Product
	require.NoError(t, json.Unmarshal(data, &products))
	require.Len(t, products, 2)
	assert.Equal(t, "Memory card", products[0].Info.Name)
	assert.Equal(t, models.Price("$24.99"), products[0].Options["128"])
	assert.True(t, products[1].NumberOfRatings.IsNaN())
	assert.True(t, products[1].DefaultPrice.IsZero())
}

func TestFileSinkCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileSink(path, false).Write(ctx, sampleProducts())
	assert.ErrorIs(t, err, context.Canceled)
}

type stubSink struct {
	calls int
	err   error
}

func (s *stubSink) Write(ctx context.Context, products []models.Product) error {
	s.calls++
	return s.err
}

func TestMultiSink(t *testing.T) {
	failing := &stubSink{err: errors.New("db down")}
	ok := &stubSink{}

	err := MultiSink{failing, ok}.Write(context.Background(), sampleProducts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)

	assert.NoError(t, MultiSink{ok}.Write(context.Background(), nil))
}
