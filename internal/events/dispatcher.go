package events

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/clock"
)

type DispatcherParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Publisher Publisher `optional:"true"`
}

// Dispatcher drains staged outbox rows to the publisher port, preserving
// insertion order within each aggregate. Rows that exhaust their attempts
// move to the dead letter queue so the aggregate's later events can flow.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	publisher Publisher
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	publisher := p.Publisher
	if publisher == nil {
		publisher = NewLogPublisher(p.Log)
	}
	return &Dispatcher{
		db:        p.DB,
		log:       p.Log.Named("events.dispatcher"),
		clock:     p.Clock,
		publisher: publisher,
	}
}

type DispatchResult struct {
	Published    int
	Failed       int
	DeadLettered int
}

// DispatchPending publishes up to batchSize unpublished rows in global
// insertion order. When an event fails and stays queued, later events of
// the same aggregate are skipped this pass to keep per-aggregate order.
func (d *Dispatcher) DispatchPending(ctx context.Context, batchSize, maxAttempts int) (DispatchResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var pending []OutboxEvent
	err := d.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC, id ASC").
		Limit(batchSize).
		Find(&pending).Error
	if err != nil {
		return DispatchResult{}, err
	}

	var result DispatchResult
	blocked := map[string]struct{}{}

	for _, event := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		aggregate := event.AggregateType + ":" + event.AggregateID
		if _, ok := blocked[aggregate]; ok {
			continue
		}

		publishErr := d.publisher.Publish(ctx, event)
		if publishErr == nil {
			if err := d.markPublished(ctx, event); err != nil {
				return result, err
			}
			result.Published++
			continue
		}

		d.log.Warn("outbox publish failed",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.Int("attempts", event.Attempts+1),
			zap.Error(publishErr),
		)

		if event.Attempts+1 >= maxAttempts {
			if err := d.moveToDLQ(ctx, event, publishErr); err != nil {
				return result, err
			}
			result.DeadLettered++
			continue
		}

		if err := d.recordFailure(ctx, event, publishErr); err != nil {
			return result, err
		}
		result.Failed++
		blocked[aggregate] = struct{}{}
	}

	return result, nil
}

// CountPending reports the unpublished backlog size.
func (d *Dispatcher) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&OutboxEvent{}).
		Where("published_at IS NULL").
		Count(&count).Error
	return count, err
}

func (d *Dispatcher) markPublished(ctx context.Context, event OutboxEvent) error {
	now := d.clock.Now()
	return d.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published_at = ? WHERE id = ?`,
		now,
		event.ID,
	).Error
}

func (d *Dispatcher) recordFailure(ctx context.Context, event OutboxEvent, publishErr error) error {
	reason := truncateReason(publishErr)
	return d.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		reason,
		event.ID,
	).Error
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, event OutboxEvent, publishErr error) error {
	now := d.clock.Now()
	reason := truncateReason(publishErr)
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO dlq_messages (id, source, reason, payload, failed_at)
			 VALUES (?, ?, ?, ?, ?)`,
			event.ID,
			"outbox:"+event.EventType,
			reason,
			event.Payload,
			now,
		).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`DELETE FROM outbox_events WHERE id = ?`,
			event.ID,
		).Error
	})
}

func truncateReason(err error) string {
	if err == nil {
		return ""
	}
	reason := strings.TrimSpace(err.Error())
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return reason
}

// MarkProcessed records (messageID, consumerGroup) in the inbox and
// reports whether this call was the first. Consumers skip redelivered
// messages when it returns false.
func MarkProcessed(ctx context.Context, tx *gorm.DB, messageID, consumerGroup string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	consumerGroup = strings.TrimSpace(consumerGroup)
	if messageID == "" || consumerGroup == "" {
		return false, errors.New("message id and consumer group are required")
	}

	result := tx.WithContext(ctx).Exec(
		`INSERT INTO inbox_messages (message_id, consumer_group, processed_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (message_id, consumer_group) DO NOTHING`,
		messageID,
		consumerGroup,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
