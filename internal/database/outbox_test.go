package database

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crawlEvent(aggregateID string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: AggregateTypeCrawl,
		AggregateID:   aggregateID,
		EventType:     EventTypeCrawlCompleted,
		Payload:       json.RawMessage(`{"run_id":"` + aggregateID + `","product_count":3}`),
	}
}

func TestOutboxEventValidate(t *testing.T) {
	testCases := []struct {
		name  string
		event *OutboxEvent
		ok    bool
	}{
		{name: "valid", event: crawlEvent("run-1"), ok: true},
		{
			name:  "missing aggregate type",
			event: &OutboxEvent{AggregateID: "run-1", EventType: EventTypeCrawlCompleted, Payload: json.RawMessage(`{}`)},
		},
		{
			name:  "missing aggregate id",
			event: &OutboxEvent{AggregateType: AggregateTypeCrawl, EventType: EventTypeCrawlCompleted, Payload: json.RawMessage(`{}`)},
		},
		{
			name:  "missing event type",
			event: &OutboxEvent{AggregateType: AggregateTypeCrawl, AggregateID: "run-1", Payload: json.RawMessage(`{}`)},
		},
		{
			name:  "missing payload",
			event: &OutboxEvent{AggregateType: AggregateTypeCrawl, AggregateID: "run-1", EventType: EventTypeCrawlCompleted},
		},
		{
			name: "invalid payload",
			event: &OutboxEvent{
				AggregateType: AggregateTypeCrawl,
				AggregateID:   "run-1",
				EventType:     EventTypeCrawlCompleted,
				Payload:       json.RawMessage(`{not json`),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	status, at := nextAttempt(1, now)
	assert.Equal(t, OutboxStatusFailed, status)
	assert.Equal(t, now.Add(2*time.Second), at)

	status, at = nextAttempt(4, now)
	assert.Equal(t, OutboxStatusFailed, status)
	assert.Equal(t, now.Add(16*time.Second), at)

	status, _ = nextAttempt(MaxRetryCount, now)
	assert.Equal(t, OutboxStatusDeadLetter, status)

	_, at = nextAttempt(12, now)
	assert.Equal(t, now.Add(300*time.Second), at)
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("fills defaults", func(t *testing.T) {
		event := crawlEvent(uuid.NewString())

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, event)
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, OutboxStatusPending, event.Status)
		assert.Equal(t, DefaultTargetStream, event.TargetStream)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("rollback on transaction failure", func(t *testing.T) {
		event := crawlEvent(uuid.NewString())

		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
			return pgx.ErrTxClosed
		})
		assert.Error(t, err)

		events, err := repo.GetPending(ctx, 100)
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, event.AggregateID, e.AggregateID)
		}
	})

	t.Run("rejects invalid event", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, &OutboxEvent{AggregateID: "x"})
		})
		assert.Error(t, err)
	})
}

func TestOutboxRepository_MarkProcessedAndFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	processed := crawlEvent(uuid.NewString())
	failing := crawlEvent(uuid.NewString())
	failing.RetryCount = MaxRetryCount - 1

	require.NoError(t, db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertWithTx(ctx, tx, processed); err != nil {
			return err
		}
		return repo.InsertWithTx(ctx, tx, failing)
	}))

	require.NoError(t, repo.MarkProcessed(ctx, processed.ID))
	assert.ErrorIs(t, repo.MarkProcessed(ctx, uuid.New()), ErrEventNotFound)

	require.NoError(t, repo.MarkFailed(ctx, failing.ID, assert.AnError))

	var status string
	var retryCount int
	err := db.pool.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox_event WHERE id = $1",
		failing.ID).Scan(&status, &retryCount)
	require.NoError(t, err)
	assert.Equal(t, OutboxStatusDeadLetter, status)
	assert.Equal(t, MaxRetryCount, retryCount)

	assert.ErrorIs(t, repo.MarkFailed(ctx, uuid.New(), assert.AnError), ErrEventNotFound)

	deadLetter, err := repo.CountByStatus(ctx, OutboxStatusDeadLetter)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deadLetter, int64(1))

	none, err := repo.CountByStatus(ctx, "no_such_status")
	require.NoError(t, err)
	assert.Zero(t, none)
}

// setupTestDB connects to the database named by TEST_DB_HOST and friends,
// and skips the test when none is configured.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("Test database not configured")
	}

	port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if err != nil {
		port = 5432
	}

	db, err := New(context.Background(), Config{
		Host:     host,
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: os.Getenv("TEST_DB_NAME"),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	return db
}
