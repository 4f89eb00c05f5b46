package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jwalitptl/drivermed-api/internal/repository"
	"github.com/jwalitptl/drivermed-api/pkg/logger"
	"github.com/jwalitptl/drivermed-api/pkg/metrics"
)

// OutboxPurger removes processed outbox rows once they are older than the retention window.
type OutboxPurger struct {
	repo      repository.OutboxRepository
	retention time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOutboxPurger(repo repository.OutboxRepository, retention time.Duration, logger *logger.Logger, metrics *metrics.Metrics) *OutboxPurger {
	return &OutboxPurger{
		repo:      repo,
		retention: retention,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (p *OutboxPurger) Purge(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)

	rows, err := p.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("purge_outbox_events", "error").Inc()
		return 0, fmt.Errorf("failed to purge outbox events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("purge_outbox_events", "success").Inc()
	p.metrics.OutboxEventsPurged.Add(float64(rows))

	p.logger.Info("Purged processed outbox events", "rows", rows, "cutoff", cutoff.Format(time.RFC3339))
	return rows, nil
}

// Schedule registers the purge as a cron job on s. Overlapping runs are skipped.
func (p *OutboxPurger) Schedule(ctx context.Context, s gocron.Scheduler, crontab string) (gocron.Job, error) {
	job, err := s.NewJob(
		gocron.CronJob(crontab, false),
		gocron.NewTask(func() {
			if _, err := p.Purge(ctx); err != nil {
				p.logger.Error(err, "Outbox purge failed")
			}
		}),
		gocron.WithName("outbox-purge"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule outbox purge: %w", err)
	}
	return job, nil
}
