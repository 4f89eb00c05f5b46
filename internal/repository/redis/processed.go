package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/drivermed-api/internal/repository"
)

const processedKeyPrefix = "stripe:event:"

type processedEventStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProcessedEventStore tracks processor event IDs for ttl so redeliveries can be skipped.
func NewProcessedEventStore(client *redis.Client, ttl time.Duration) repository.ProcessedEventStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &processedEventStore{client: client, ttl: ttl}
}

func (s *processedEventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return n > 0, nil
}

func (s *processedEventStore) Remember(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, processedKeyPrefix+eventID, time.Now().UTC().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}
