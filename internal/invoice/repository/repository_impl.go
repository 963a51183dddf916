package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/invoice/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, customer_id, rental_id, status,
			subtotal, tax, total, paid,
			issue_date, due_date, paid_date,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.CustomerID,
		invoice.RentalID,
		invoice.Status,
		invoice.Subtotal,
		invoice.Tax,
		invoice.Total,
		invoice.Paid,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.PaidDate,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Invoice{}), filter)

	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at > ?) OR (created_at = ? AND id > ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var count int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Invoice{}), filter).Count(&count).Error
	return count, err
}

func (r *repo) Issue(ctx context.Context, db *gorm.DB, id uuid.UUID, issueDate, dueDate, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, issue_date = ?, due_date = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusIssued, issueDate, dueDate, at,
		id, domain.StatusDraft,
	)
	return res.RowsAffected, res.Error
}

// ApplyPayment evaluates paid on the stored row, so concurrent captures
// serialize on the row lock and the overpay guard sees the latest total.
func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET paid = paid + ?,
		     status = CASE WHEN paid + ? >= total THEN ? ELSE status END,
		     paid_date = CASE WHEN paid + ? >= total THEN ? ELSE paid_date END,
		     updated_at = ?
		 WHERE id = ? AND status IN (?, ?) AND paid + ? <= total`,
		amount,
		amount, domain.StatusPaid,
		amount, at,
		at,
		id, domain.StatusIssued, domain.StatusOverdue, amount,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?) AND paid = 0`,
		domain.StatusCancelled, at,
		id, domain.StatusDraft, domain.StatusIssued, domain.StatusOverdue,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date < ?`,
		domain.StatusOverdue, now,
		domain.StatusIssued, now,
	)
	return res.RowsAffected, res.Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.CustomerID != nil {
		stmt = stmt.Where("customer_id = ?", *filter.CustomerID)
	}
	return stmt
}
