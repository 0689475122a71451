package infrastructure

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

// OutboxRelay moves committed events from the outbox to a publisher. Delivery is at
// least once: an event is marked published only after Publish succeeds.
type OutboxRelay struct {
	store     domain.Store
	publisher EventPublisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

func NewOutboxRelay(store domain.Store, publisher EventPublisher, cfg OutboxConfig, logger *zap.Logger) *OutboxRelay {
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Run relays until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("outbox relay failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many events were published. It stops at
// the first failing event so ordering is kept.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	published := 0
	err := r.store.Transaction(ctx, func(tx domain.Store) error {
		events, err := tx.PendingEvents(ctx, r.batchSize)
		if err != nil {
			return err
		}

		var ids []uint
		var publishErr error
		for _, event := range events {
			if publishErr = r.publisher.Publish(ctx, event); publishErr != nil {
				r.logger.Warn("publishing event failed", zap.String("event_id", event.EventID), zap.Error(publishErr))
				break
			}
			ids = append(ids, event.ID)
		}

		if err := tx.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if published > 0 {
		r.logger.Debug("outbox events published", zap.Int("count", published))
	}
	return published, nil
}
