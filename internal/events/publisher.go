package events

import (
	"context"

	"go.uber.org/zap"
)

// Publisher hands a drained outbox event to the external bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// LogPublisher is the default port implementation. It writes the event
// to the service log; deployments with a real bus swap it out.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events.publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.log.Info("outbox event published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_type", event.AggregateType),
		zap.String("aggregate_id", event.AggregateID),
	)
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
