package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/pkg/telemetry/correlation"
)

var (
	ErrMissingTransaction = errors.New("outbox requires an open transaction")
	ErrMissingEventType   = errors.New("event type is required")
	ErrMissingAggregate   = errors.New("event aggregate is required")
)

// Outbox stages events in the same transaction as the state change that
// caused them.
type Outbox struct {
	log *zap.Logger
}

func NewOutbox(log *zap.Logger) *Outbox {
	return &Outbox{log: log.Named("events.outbox")}
}

// PublishTx inserts the event inside the caller's transaction. A
// duplicate dedupe key is dropped silently so idempotent retries of the
// surrounding operation never double-stage.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return ErrMissingTransaction
	}

	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return ErrMissingEventType
	}
	aggregateType := strings.TrimSpace(event.AggregateType)
	aggregateID := strings.TrimSpace(event.AggregateID)
	if aggregateType == "" || aggregateID == "" {
		return ErrMissingAggregate
	}

	payload := map[string]any{}
	for key, value := range event.Payload {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		payload["correlation_id"] = cid
	}
	payload = correlation.InjectTraceIntoMetadata(payload, trace.SpanFromContext(ctx))

	var dedupeKey *string
	if key := strings.TrimSpace(event.DedupeKey); key != "" {
		dedupeKey = &key
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload, dedupe_key, attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		uuid.New(),
		aggregateType,
		aggregateID,
		eventType,
		datatypes.JSONMap(payload),
		dedupeKey,
		time.Now().UTC(),
	).Error
}
