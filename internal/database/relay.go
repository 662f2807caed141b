package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relaySource = "catalog-scraper"

// RedisClient is the part of the redis client the relay needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the part of the outbox the relay needs.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen caps each stream approximately. Zero keeps the default,
	// a negative value disables trimming.
	StreamMaxLen int64
}

// Relay announces stored crawl runs on Redis streams. Each completed run
// becomes one flat stream entry consumers can read without decoding the
// outbox envelope.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	maxLen    int64
}

func NewRelay(db *DB, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), redisClient, logger, config)
}

func newRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	switch {
	case config.StreamMaxLen == 0:
		config.StreamMaxLen = 10000
	case config.StreamMaxLen < 0:
		config.StreamMaxLen = 0
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		maxLen:    config.StreamMaxLen,
	}
}

// Start drains the outbox once and then on every poll until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay",
		"interval", r.interval,
		"batch_size", r.batchSize,
		"stream_max_len", r.maxLen)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if published, err := r.ProcessOnce(ctx); err != nil {
			r.logger.Error("failed to relay crawl events", "error", err)
		} else if published > 0 {
			r.logger.Info("relayed crawl events", "count", published)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch of due events and returns how many were
// published. A failing event is marked failed and does not stop the batch.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		run, err := r.publish(ctx, event)
		if err != nil {
			r.logger.Error("failed to publish crawl event",
				"event_id", event.ID,
				"run_id", event.AggregateID,
				"attempt", event.RetryCount+1,
				"error", err)
			if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
				r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
			}
			continue
		}

		if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
			// Already on the stream; the next poll publishes it again.
			r.logger.Error("failed to mark event as processed", "event_id", event.ID, "error", err)
			continue
		}

		r.logger.Info("crawl run announced",
			"run_id", run.RunID,
			"products", run.ProductCount,
			"stream", event.TargetStream)
		published++
	}

	return published, nil
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) (*CrawlCompletedPayload, error) {
	run, err := event.CrawlCompleted()
	if err != nil {
		return nil, err
	}

	args, err := r.streamEntry(event, run)
	if err != nil {
		return nil, err
	}

	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return nil, fmt.Errorf("failed to publish to redis: %w", err)
	}
	return run, nil
}

// streamEntry flattens a crawl-completed event into stream fields.
func (r *Relay) streamEntry(event *OutboxEvent, run *CrawlCompletedPayload) (*redis.XAddArgs, error) {
	urls, err := json.Marshal(run.ProductURLs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product urls: %w", err)
	}

	stream := event.TargetStream
	if stream == "" {
		stream = DefaultTargetStream
	}

	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: map[string]interface{}{
			"event_id":      event.ID.String(),
			"event_type":    event.EventType,
			"run_id":        run.RunID,
			"product_count": run.ProductCount,
			"product_urls":  string(urls),
			"completed_at":  run.CompletedAt.UTC().Format(time.RFC3339Nano),
			"attempt":       event.RetryCount + 1,
			"source":        relaySource,
		},
	}, nil
}

// PendingCount returns how many events still wait for publication.
func (r *Relay) PendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

func (r *Relay) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
