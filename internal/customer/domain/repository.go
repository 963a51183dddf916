package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Email    string
	License  string
	IsActive *bool
	Search   string

	Cursor *Cursor
	Limit  int
}

// Cursor is the keyset position for customer pages, ordered by creation.
type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Customer, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Customer, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
	Update(ctx context.Context, db *gorm.DB, customer *Customer) error
}
