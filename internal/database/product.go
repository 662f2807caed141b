package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-scraper/internal/models"
)

const (
	AggregateTypeCrawl      = "catalog_crawl"
	EventTypeCrawlCompleted = "CATALOG_CRAWL_COMPLETED"
)

var ErrUnsupportedEvent = errors.New("unsupported outbox event")

// CrawlCompletedPayload is the outbox payload announcing a stored crawl.
type CrawlCompletedPayload struct {
	RunID        string    `json:"run_id"`
	ProductCount int       `json:"product_count"`
	ProductURLs  []string  `json:"product_urls"`
	CompletedAt  time.Time `json:"completed_at"`
}

// CrawlCompleted decodes the payload of a CATALOG_CRAWL_COMPLETED event and
// checks it against the event envelope.
func (e *OutboxEvent) CrawlCompleted() (*CrawlCompletedPayload, error) {
	if e.EventType != EventTypeCrawlCompleted || e.AggregateType != AggregateTypeCrawl {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedEvent, e.AggregateType, e.EventType)
	}

	var payload CrawlCompletedPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode crawl payload: %w", err)
	}

	switch {
	case payload.RunID != e.AggregateID:
		return nil, fmt.Errorf("payload run id %q does not match aggregate %q", payload.RunID, e.AggregateID)
	case payload.ProductCount != len(payload.ProductURLs):
		return nil, fmt.Errorf("payload lists %d urls for %d products", len(payload.ProductURLs), payload.ProductCount)
	}
	return &payload, nil
}

// ProductRow is one product as stored in catalog_products.
type ProductRow struct {
	URL             string
	RunID           uuid.UUID
	Name            string
	Description     string
	Options         json.RawMessage
	DefaultPrice    *string
	Colors          json.RawMessage
	NumberOfRatings *float64
	NumberOfStars   int
	ScrapedAt       time.Time
}

func newProductRow(runID uuid.UUID, p models.Product, at time.Time) (ProductRow, error) {
	options := p.Options
	if options == nil {
		options = map[string]models.Price{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return ProductRow{}, fmt.Errorf("failed to marshal options: %w", err)
	}

	colors := p.Colors
	if colors == nil {
		colors = []string{}
	}
	colorsJSON, err := json.Marshal(colors)
	if err != nil {
		return ProductRow{}, fmt.Errorf("failed to marshal colors: %w", err)
	}

	row := ProductRow{
		URL:           p.Info.URL,
		RunID:         runID,
		Name:          p.Info.Name,
		Description:   p.Info.Description,
		Options:       optionsJSON,
		Colors:        colorsJSON,
		NumberOfStars: p.NumberOfStars,
		ScrapedAt:     at,
	}
	if !p.DefaultPrice.IsZero() {
		price := string(p.DefaultPrice)
		row.DefaultPrice = &price
	}
	if !p.NumberOfRatings.IsNaN() {
		ratings := float64(p.NumberOfRatings)
		row.NumberOfRatings = &ratings
	}

	return row, nil
}

// Product converts the row back to the extracted form.
func (r ProductRow) Product() (models.Product, error) {
	p := models.NewProduct(models.ProductInfo{
		Name:        r.Name,
		Description: r.Description,
		URL:         r.URL,
	})

	if len(r.Options) > 0 {
		if err := json.Unmarshal(r.Options, &p.Options); err != nil {
			return models.Product{}, fmt.Errorf("failed to decode options: %w", err)
		}
	}
	if len(r.Colors) > 0 {
		if err := json.Unmarshal(r.Colors, &p.Colors); err != nil {
			return models.Product{}, fmt.Errorf("failed to decode colors: %w", err)
		}
	}
	if r.DefaultPrice != nil {
		p.DefaultPrice = models.Price(*r.DefaultPrice)
	}
	if r.NumberOfRatings != nil {
		p.NumberOfRatings = models.RatingCount(*r.NumberOfRatings)
	}
	p.NumberOfStars = r.NumberOfStars

	return p, nil
}

func newCrawlCompletedEvent(runID uuid.UUID, products []models.Product, at time.Time) (*OutboxEvent, error) {
	urls := make([]string, 0, len(products))
	for _, p := range products {
		urls = append(urls, p.Info.URL)
	}

	payload, err := json.Marshal(CrawlCompletedPayload{
		RunID:        runID.String(),
		ProductCount: len(products),
		ProductURLs:  urls,
		CompletedAt:  at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &OutboxEvent{
		AggregateType: AggregateTypeCrawl,
		AggregateID:   runID.String(),
		EventType:     EventTypeCrawlCompleted,
		Payload:       payload,
		TargetStream:  DefaultTargetStream,
	}, nil
}

// ProductRepository stores crawled products and announces each stored run
// through the outbox.
type ProductRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewProductRepository(db *DB, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
		logger: logger.With("component", "product_repository"),
	}
}

// Write stores products as a new crawl run.
func (r *ProductRepository) Write(ctx context.Context, products []models.Product) error {
	return r.WriteRun(ctx, uuid.New(), products)
}

// ForRun returns a sink that stores its products under runID, so the run
// can later be read back with ListByRun.
func (r *ProductRepository) ForRun(runID uuid.UUID) *RunSink {
	return &RunSink{repo: r, runID: runID}
}

// RunSink writes one known crawl run.
type RunSink struct {
	repo  *ProductRepository
	runID uuid.UUID
}

func (s *RunSink) Write(ctx context.Context, products []models.Product) error {
	return s.repo.WriteRun(ctx, s.runID, products)
}

// WriteRun upserts all products of one crawl run, keyed by product URL, and
// records a CATALOG_CRAWL_COMPLETED event in the same transaction.
func (r *ProductRepository) WriteRun(ctx context.Context, runID uuid.UUID, products []models.Product) error {
	now := time.Now().UTC()

	batch := &pgx.Batch{}
	for _, p := range products {
		row, err := newProductRow(runID, p, now)
		if err != nil {
			return fmt.Errorf("product %s: %w", p.Info.URL, err)
		}
		batch.Queue(upsertProductQuery,
			row.URL, row.RunID, row.Name, row.Description, row.Options,
			row.DefaultPrice, row.Colors, row.NumberOfRatings, row.NumberOfStars, row.ScrapedAt,
		)
	}

	event, err := newCrawlCompletedEvent(runID, products, now)
	if err != nil {
		return err
	}

	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to upsert products: %w", err)
			}
		}
		return r.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return err
	}

	r.logger.Info("stored crawl run", "run_id", runID, "products", len(products))
	return nil
}

const upsertProductQuery = `
	INSERT INTO catalog_products (
		url, run_id, name, description, options,
		default_price, colors, number_of_ratings, number_of_stars, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	)
	ON CONFLICT (url) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		options = EXCLUDED.options,
		default_price = EXCLUDED.default_price,
		colors = EXCLUDED.colors,
		number_of_ratings = EXCLUDED.number_of_ratings,
		number_of_stars = EXCLUDED.number_of_stars,
		scraped_at = EXCLUDED.scraped_at`

// ListByRun returns the products last stored by the given run, ordered by
// URL.
func (r *ProductRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Product, error) {
	query := `
		SELECT
			url, run_id, name, description, options,
			default_price, colors, number_of_ratings, number_of_stars, scraped_at
		FROM catalog_products
		WHERE run_id = $1
		ORDER BY url`

	rows, err := r.db.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var row ProductRow
		if err := rows.Scan(
			&row.URL, &row.RunID, &row.Name, &row.Description, &row.Options,
			&row.DefaultPrice, &row.Colors, &row.NumberOfRatings, &row.NumberOfStars, &row.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		p, err := row.Product()
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", row.URL, err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

// Count returns the number of distinct products stored.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM catalog_products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
