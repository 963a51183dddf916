package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/clock"
)

type fakePublisher struct {
	failing   map[string]error
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, event OutboxEvent) error {
	if err, ok := p.failing[event.EventType]; ok {
		return err
	}
	p.published = append(p.published, event.EventType)
	return nil
}

func newEventsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&OutboxEvent{}, &InboxMessage{}, &DLQMessage{}))
	return db
}

func newTestDispatcher(db *gorm.DB, publisher Publisher) *Dispatcher {
	return NewDispatcher(DispatcherParams{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Publisher: publisher,
	})
}

func stageEvent(t *testing.T, db *gorm.DB, outbox *Outbox, event Event) {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return outbox.PublishTx(context.Background(), tx, event)
	}))
}

func TestPublishTxDeduplicates(t *testing.T) {
	db := newEventsTestDB(t)
	outbox := NewOutbox(zap.NewNop())

	event := Event{
		AggregateType: AggregateRental,
		AggregateID:   "ren_1",
		Type:          EventRentalCreated,
		Payload:       map[string]any{"rental_number": "RNT-1001"},
		DedupeKey:     "rental_created:ren_1",
	}
	stageEvent(t, db, outbox, event)
	stageEvent(t, db, outbox, event)

	var count int64
	require.NoError(t, db.Model(&OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, EventRentalCreated, row.EventType)
	assert.Equal(t, "RNT-1001", row.Payload["rental_number"])
	assert.NotEmpty(t, row.Payload["correlation_id"])
}

func TestPublishTxRejectsIncompleteEvents(t *testing.T) {
	db := newEventsTestDB(t)
	outbox := NewOutbox(zap.NewNop())

	err := db.Transaction(func(tx *gorm.DB) error {
		return outbox.PublishTx(context.Background(), tx, Event{Type: EventRentalCreated})
	})
	assert.ErrorIs(t, err, ErrMissingAggregate)

	err = db.Transaction(func(tx *gorm.DB) error {
		return outbox.PublishTx(context.Background(), tx, Event{AggregateType: AggregateRental, AggregateID: "ren_1"})
	})
	assert.ErrorIs(t, err, ErrMissingEventType)
}

func TestDispatchPendingPublishesInOrder(t *testing.T) {
	db := newEventsTestDB(t)
	outbox := NewOutbox(zap.NewNop())

	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalCreated, DedupeKey: "a",
	})
	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalActivated, DedupeKey: "b",
	})

	publisher := &fakePublisher{}
	dispatcher := newTestDispatcher(db, publisher)

	result, err := dispatcher.DispatchPending(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Published)
	assert.Equal(t, []string{EventRentalCreated, EventRentalActivated}, publisher.published)

	pending, err := dispatcher.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestDispatchPendingBlocksAggregateAfterFailure(t *testing.T) {
	db := newEventsTestDB(t)
	outbox := NewOutbox(zap.NewNop())

	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalCreated, DedupeKey: "a",
	})
	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalActivated, DedupeKey: "b",
	})
	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateInvoice, AggregateID: "inv_9",
		Type: EventInvoiceIssued, DedupeKey: "c",
	})

	publisher := &fakePublisher{failing: map[string]error{
		EventRentalCreated: errors.New("bus unavailable"),
	}}
	dispatcher := newTestDispatcher(db, publisher)

	result, err := dispatcher.DispatchPending(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.DeadLettered)
	assert.Equal(t, []string{EventInvoiceIssued}, publisher.published)

	var failed OutboxEvent
	require.NoError(t, db.First(&failed, "event_type = ?", EventRentalCreated).Error)
	assert.Equal(t, 1, failed.Attempts)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "bus unavailable", *failed.LastError)
}

func TestDispatchPendingMovesExhaustedEventsToDLQ(t *testing.T) {
	db := newEventsTestDB(t)
	outbox := NewOutbox(zap.NewNop())

	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalCreated, DedupeKey: "a",
	})
	stageEvent(t, db, outbox, Event{
		AggregateType: AggregateRental, AggregateID: "ren_1",
		Type: EventRentalCompleted, DedupeKey: "b",
	})

	publisher := &fakePublisher{failing: map[string]error{
		EventRentalCreated: errors.New("bus unavailable"),
	}}
	dispatcher := newTestDispatcher(db, publisher)

	for i := 0; i < 2; i++ {
		_, err := dispatcher.DispatchPending(context.Background(), 10, 3)
		require.NoError(t, err)
	}

	// Third attempt exhausts the budget; the aggregate unblocks in the
	// same pass once the poisoned event is dead lettered.
	result, err := dispatcher.DispatchPending(context.Background(), 10, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)
	assert.Equal(t, 1, result.Published)
	assert.Contains(t, publisher.published, EventRentalCompleted)

	var dlq DLQMessage
	require.NoError(t, db.First(&dlq).Error)
	assert.Equal(t, "outbox:"+EventRentalCreated, dlq.Source)
	assert.Equal(t, "bus unavailable", dlq.Reason)

	pending, err := dispatcher.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestMarkProcessedDeduplicates(t *testing.T) {
	db := newEventsTestDB(t)

	first, err := MarkProcessed(context.Background(), db, "msg_1", "fleet-consumer")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := MarkProcessed(context.Background(), db, "msg_1", "fleet-consumer")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := MarkProcessed(context.Background(), db, "msg_1", "other-consumer")
	require.NoError(t, err)
	assert.True(t, other)
}
