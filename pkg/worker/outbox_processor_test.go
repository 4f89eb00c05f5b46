package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/messaging"
	"github.com/jwalitptl/drivermed-api/pkg/messaging/redis"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	retried   map[uuid.UUID]time.Time
	failed    []uuid.UUID
	purgedAt  time.Time
	claimErr  error
}

func newFakeOutbox(events ...*model.OutboxEvent) *fakeOutbox {
	return &fakeOutbox{pending: events, retried: map[uuid.UUID]time.Time{}}
}

func (f *fakeOutbox) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

func (f *fakeOutbox) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutbox) MarkRetry(_ context.Context, id uuid.UUID, _ string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried[id] = retryAt
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	f.purgedAt = before
	return 4, nil
}

type failingBroker struct {
	calls int
}

func (b *failingBroker) Publish(context.Context, string, interface{}) error {
	b.calls++
	return errors.New("connection refused")
}

func (b *failingBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *failingBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxDeliveries: 3,
	}
}

func newEvent(eventType string, retries int) *model.OutboxEvent {
	payload, _ := json.Marshal(model.BookingEventPayload{BookingID: uuid.New(), Status: model.BookingStatusConfirmed})
	return &model.OutboxEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		Payload:    payload,
		Status:     model.OutboxStatusProcessing,
		RetryCount: retries,
	}
}

func newRedisBroker(t *testing.T) (messaging.Broker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return redis.NewRedisBroker(client, "drivermed", logger.Nop()), mr
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDeliveries = 0
	_, err := NewOutboxProcessor(newFakeOutbox(), &failingBroker{}, cfg, logger.Nop(), metrics.New("test"))
	assert.Error(t, err)
}

func TestProcessBatchPublishesToRedis(t *testing.T) {
	broker, _ := newRedisBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := broker.Subscribe(ctx, model.EventBookingConfirmed)
	require.NoError(t, err)

	event := newEvent(model.EventBookingConfirmed, 0)
	repo := newFakeOutbox(event)
	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	published, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.processed)

	select {
	case raw := <-messages:
		var msg struct {
			ID      string                    `json:"id"`
			Type    string                    `json:"type"`
			Payload model.BookingEventPayload `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, event.ID.String(), msg.ID)
		assert.Equal(t, model.EventBookingConfirmed, msg.Type)
		assert.Equal(t, model.BookingStatusConfirmed, msg.Payload.Status)
	case <-ctx.Done():
		t.Fatal("message was not published")
	}
}

func TestProcessBatchSchedulesRetryWithBackoff(t *testing.T) {
	broker := &failingBroker{}
	first := newEvent(model.EventBookingCreated, 0)
	second := newEvent(model.EventBookingCreated, 1)
	repo := newFakeOutbox(first, second)

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	published, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Equal(t, 4, broker.calls)

	assert.Equal(t, now.Add(time.Millisecond), repo.retried[first.ID])
	assert.Equal(t, now.Add(2*time.Millisecond), repo.retried[second.ID])
	assert.Empty(t, repo.processed)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchFailsExhaustedEvents(t *testing.T) {
	event := newEvent(model.EventBookingCancelled, 2)
	repo := newFakeOutbox(event)

	p, err := NewOutboxProcessor(repo, &failingBroker{}, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.failed)
	assert.Empty(t, repo.retried)
}

func TestProcessBatchClaimError(t *testing.T) {
	repo := newFakeOutbox()
	repo.claimErr = errors.New("connection reset")

	p, err := NewOutboxProcessor(repo, &failingBroker{}, testConfig(), logger.Nop(), metrics.New("test"))
	require.NoError(t, err)

	_, err = p.ProcessBatch(context.Background())
	assert.ErrorContains(t, err, "failed to claim pending events")
}

func TestBackoffIsCapped(t *testing.T) {
	p := &OutboxProcessor{config: OutboxProcessorConfig{RetryDelay: time.Minute}}
	assert.Equal(t, time.Minute, p.backoff(0))
	assert.Equal(t, 4*time.Minute, p.backoff(2))
	assert.Equal(t, maxBackoff, p.backoff(20))
}

func TestOutboxPurge(t *testing.T) {
	repo := newFakeOutbox()
	purger := NewOutboxPurger(repo, 7*24*time.Hour, logger.Nop(), metrics.New("test"))
	now := time.Date(2025, 6, 8, 3, 15, 0, 0, time.UTC)
	purger.now = func() time.Time { return now }

	rows, err := purger.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), rows)
	assert.Equal(t, time.Date(2025, 6, 1, 3, 15, 0, 0, time.UTC), repo.purgedAt)
}
