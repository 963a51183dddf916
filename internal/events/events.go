package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event types drained through the outbox. The bus behind the publisher
// port is external; these names are its vocabulary.
const (
	EventRentalCreated        = "rental.created"
	EventRentalActivated      = "rental.activated"
	EventRentalCompleted      = "rental.completed"
	EventRentalCancelled      = "rental.cancelled"
	EventVehicleStateChanged  = "vehicle.state_changed"
	EventMaintenanceCompleted = "maintenance.completed"
	EventInvoiceIssued        = "invoice.issued"
	EventInvoicePaid          = "invoice.paid"
	EventPaymentRecorded      = "payment.recorded"
	EventLedgerEntryCreated   = "ledger.entry_created"
)

// Aggregate types stamped on outbox rows. Draining preserves insertion
// order within one (type, id) pair.
const (
	AggregateRental      = "rental"
	AggregateVehicle     = "vehicle"
	AggregateMaintenance = "maintenance_job"
	AggregateInvoice     = "invoice"
	AggregatePayment     = "payment"
	AggregateLedgerEntry = "ledger_entry"
)

// Event is what services hand to the outbox inside their transaction.
type Event struct {
	AggregateType string
	AggregateID   string
	Type          string
	Payload       map[string]any
	DedupeKey     string
}

// OutboxEvent is a staged event awaiting delivery to the publisher port.
type OutboxEvent struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey"`
	AggregateType string            `gorm:"type:text;not null;index:idx_outbox_aggregate,priority:1"`
	AggregateID   string            `gorm:"type:text;not null;index:idx_outbox_aggregate,priority:2"`
	EventType     string            `gorm:"type:text;not null"`
	Payload       datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey     *string           `gorm:"type:text;uniqueIndex:ux_outbox_dedupe"`
	Attempts      int               `gorm:"not null;default:0"`
	LastError     *string           `gorm:"type:text"`
	CreatedAt     time.Time         `gorm:"not null;index"`
	PublishedAt   *time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// InboxMessage records an already-processed inbound message so redelivery
// by the external bus stays idempotent per consumer group.
type InboxMessage struct {
	MessageID     string    `gorm:"type:text;primaryKey"`
	ConsumerGroup string    `gorm:"type:text;primaryKey"`
	ProcessedAt   time.Time `gorm:"not null"`
}

func (InboxMessage) TableName() string { return "inbox_messages" }

// DLQMessage holds an outbox event that exhausted its delivery attempts.
type DLQMessage struct {
	ID       uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Source   string            `gorm:"type:text;not null"`
	Reason   string            `gorm:"type:text;not null"`
	Payload  datatypes.JSONMap `gorm:"type:jsonb;not null"`
	FailedAt time.Time         `gorm:"not null"`
}

func (DLQMessage) TableName() string { return "dlq_messages" }
