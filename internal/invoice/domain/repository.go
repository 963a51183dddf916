package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status     Status
	CustomerID *uuid.UUID
	Cursor     *Cursor
	Limit      int
}

type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Repository persists invoices. The state-changing methods are guarded
// updates keyed on the current status; a zero row count means another
// writer moved the invoice first.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)

	Issue(ctx context.Context, db *gorm.DB, id uuid.UUID, issueDate, dueDate, at time.Time) (int64, error)

	// ApplyPayment accumulates paid atomically. The WHERE clause keeps the
	// invoice payable and rejects any amount that would push paid past
	// total, so concurrent captures cannot overpay.
	ApplyPayment(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64, at time.Time) (int64, error)

	Cancel(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) (int64, error)
	MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
