package events

import (
	"context"

	"go.uber.org/zap"

	"renobroker/pkg/outbox"
)

// Sink records a domain event for asynchronous publishing. Ledgers emit
// through this interface so tests can swap in a capture or no-op sink.
type Sink interface {
	Emit(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error
}

// OutboxSink writes events into the transactional outbox; the worker's
// dispatcher publishes them to MQ.
type OutboxSink struct {
	repo   *outbox.Repository
	logger *zap.Logger
}

func NewOutboxSink(repo *outbox.Repository, logger *zap.Logger) *OutboxSink {
	return &OutboxSink{
		repo:   repo,
		logger: logger,
	}
}

func (s *OutboxSink) Emit(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error {
	err := outbox.InsertPending(ctx, s.repo, aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		s.logger.Error("Failed to record outbox event",
			zap.String("aggregate_type", aggregateType),
			zap.String("aggregate_id", aggregateID),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
	return err
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, aggregateType, aggregateID, routingKey string, payload any) error {
	return nil
}
