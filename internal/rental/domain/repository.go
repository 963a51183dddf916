package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilter narrows rental listings. Cursor pagination walks (created_at,
// id) ascending.
type ListFilter struct {
	Status     Status
	VehicleID  *uuid.UUID
	CustomerID *uuid.UUID
	Cursor     *Cursor
	Limit      int
}

type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, rental *Rental) error
	InsertPeriod(ctx context.Context, db *gorm.DB, period *RentalPeriod) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Rental, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Rental, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)

	// CountOverlapping counts blocking periods intersecting the half-open
	// window [start, end) for the vehicle.
	CountOverlapping(ctx context.Context, db *gorm.DB, vehicleID uuid.UUID, start, end time.Time) (int64, error)

	// The guarded updates include the expected status in the WHERE clause
	// and report affected rows so callers detect lost races.
	Activate(ctx context.Context, db *gorm.DB, id uuid.UUID, actualStart time.Time, startOdometerKm int64, at time.Time) (int64, error)
	Complete(ctx context.Context, db *gorm.DB, id uuid.UUID, actualEnd time.Time, endOdometerKm int64, at time.Time) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to Status, at time.Time) (int64, error)
	UpdatePeriodStatus(ctx context.Context, db *gorm.DB, rentalID uuid.UUID, to Status) error
}
