package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the payment record state. Captures through the invoice flow
// land as COMPLETED; the other states cover imported or corrected rows.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod maps a tender code to the asset account debited when a
// payment is captured.
type PaymentMethod struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string    `gorm:"type:varchar(40);not null;uniqueIndex:ux_payment_methods_code" json:"code"`
	DisplayName       string    `gorm:"type:varchar(120);not null" json:"displayName"`
	TargetAccountCode string    `gorm:"type:varchar(20);not null" json:"targetAccountCode"`
	IsActive          bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// Payment is one captured tender against an invoice.
type Payment struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentNumber        string     `gorm:"type:varchar(40);not null;uniqueIndex:ux_payments_number" json:"paymentNumber"`
	CustomerID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"customerId"`
	InvoiceID            *uuid.UUID `gorm:"type:uuid;index" json:"invoiceId,omitempty"`
	Amount               int64      `gorm:"not null" json:"amount"`
	Method               string     `gorm:"type:varchar(40);not null" json:"method"`
	Status               Status     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentDate          time.Time  `gorm:"not null" json:"paymentDate"`
	TransactionReference string     `gorm:"type:text" json:"transactionReference,omitempty"`
	Notes                string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt            time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt            time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Payment) TableName() string { return "payments" }
