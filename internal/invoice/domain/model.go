package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the invoice lifecycle state. DRAFT invoices are editable and
// invisible to reconciliation; ISSUED and OVERDUE invoices accept
// payments; PAID and CANCELLED are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// Payable reports whether the invoice can accept a payment.
func (s Status) Payable() bool {
	return s == StatusIssued || s == StatusOverdue
}

// Invoice is a receivable for a customer, optionally tied to a rental.
// Total is always subtotal plus tax, fixed at creation; paid accumulates
// through captures and never exceeds total.
type Invoice struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNumber string     `gorm:"type:varchar(40);not null;uniqueIndex:ux_invoices_number" json:"invoiceNumber"`
	CustomerID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"customerId"`
	RentalID      *uuid.UUID `gorm:"type:uuid;index" json:"rentalId,omitempty"`
	Status        Status     `gorm:"type:varchar(20);not null;index" json:"status"`
	Subtotal      int64      `gorm:"not null;default:0" json:"subtotal"`
	Tax           int64      `gorm:"not null;default:0" json:"tax"`
	Total         int64      `gorm:"not null;default:0" json:"total"`
	Paid          int64      `gorm:"not null;default:0" json:"paid"`
	Balance       int64      `gorm:"-" json:"balance"`
	IssueDate     time.Time  `gorm:"not null" json:"issueDate"`
	DueDate       time.Time  `gorm:"not null" json:"dueDate"`
	PaidDate      *time.Time `json:"paidDate,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Invoice) TableName() string { return "invoices" }

// AfterFind derives the open balance so every read path carries it.
func (i *Invoice) AfterFind(*gorm.DB) error {
	i.Balance = i.Total - i.Paid
	return nil
}

// Cancellable reports whether the invoice may still be voided. Any
// collected amount pins it; refunds are out of scope.
func (i *Invoice) Cancellable() bool {
	if i.Paid != 0 {
		return false
	}
	switch i.Status {
	case StatusDraft, StatusIssued, StatusOverdue:
		return true
	default:
		return false
	}
}
