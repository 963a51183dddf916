package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/payment/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateMethod(ctx context.Context, db *gorm.DB, method *domain.PaymentMethod) error {
	if method == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_methods (id, code, display_name, target_account_code, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		method.ID,
		method.Code,
		method.DisplayName,
		method.TargetAccountCode,
		method.IsActive,
		method.CreatedAt,
		method.UpdatedAt,
	).Error
}

func (r *repo) FindMethodByCode(ctx context.Context, db *gorm.DB, code string) (*domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	err := db.WithContext(ctx).
		Where("code = ?", code).
		First(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &method, nil
}

func (r *repo) ListMethods(ctx context.Context, db *gorm.DB, includeInactive bool) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	stmt := db.WithContext(ctx).Model(&domain.PaymentMethod{})
	if !includeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("code asc").Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repo) CreatePayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	if payment == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, payment_number, customer_id, invoice_id, amount, method, status,
			payment_date, transaction_reference, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.PaymentNumber,
		payment.CustomerID,
		payment.InvoiceID,
		payment.Amount,
		payment.Method,
		payment.Status,
		payment.PaymentDate,
		payment.TransactionReference,
		payment.Notes,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID uuid.UUID) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date asc, created_at asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
