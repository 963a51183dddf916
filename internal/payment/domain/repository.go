package domain

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateMethod(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	FindMethodByCode(ctx context.Context, db *gorm.DB, code string) (*PaymentMethod, error)
	ListMethods(ctx context.Context, db *gorm.DB, includeInactive bool) ([]PaymentMethod, error)

	CreatePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID uuid.UUID) ([]Payment, error)
}
