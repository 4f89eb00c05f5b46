package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/drivermed-api/internal/model"
	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/messaging"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

// maxBackoff caps the delay between delivery cycles of one event.
const maxBackoff = 30 * time.Minute

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts is how many publishes are tried within one claim before backing off.
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxDeliveries is how many claim cycles an event gets before it is marked failed.
	MaxDeliveries int
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("outbox batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("outbox poll interval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("outbox retry attempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("outbox retry delay must be greater than 0")
	}
	if config.MaxDeliveries <= 0 {
		return nil, fmt.Errorf("outbox max deliveries must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor", "batch_size", p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims one batch and relays it. It returns how many events were published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.ClaimPending(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "error").Inc()
		return 0, fmt.Errorf("failed to claim pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("claim_outbox_events", "success").Inc()

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: event.Payload,
	}

	err := p.retry(ctx, event.EventType, func() error {
		return p.broker.Publish(ctx, event.EventType, msg)
	})
	if err != nil {
		return p.deferEvent(ctx, event, err)
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		// The message is out; a stale claim will republish it and consumers dedupe on ID.
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// deferEvent schedules another delivery cycle with exponential backoff, or gives up
// once the event has used all of its deliveries.
func (p *OutboxProcessor) deferEvent(ctx context.Context, event *model.OutboxEvent, cause error) error {
	p.metrics.OutboxEventsFailed.Inc()
	msg := cause.Error()

	if event.RetryCount+1 >= p.config.MaxDeliveries {
		if err := p.repo.MarkFailed(ctx, event.ID, msg); err != nil {
			p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		}
		p.logger.Warn("Outbox event exhausted its deliveries",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"deliveries", event.RetryCount+1)
		return cause
	}

	retryAt := p.now().Add(p.backoff(event.RetryCount))
	if err := p.repo.MarkRetry(ctx, event.ID, msg, retryAt); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
	return cause
}

func (p *OutboxProcessor) backoff(deliveries int) time.Duration {
	d := p.config.RetryDelay
	for i := 0; i < deliveries; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (p *OutboxProcessor) retry(ctx context.Context, eventType string, fn func() error) error {
	var err error
	for i := 0; i < p.config.RetryAttempts; i++ {
		if i > 0 {
			p.metrics.OutboxRetries.WithLabelValues(eventType).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.config.RetryDelay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
