package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	State State
	Make  string
	Plate string

	Cursor *Cursor
	Limit  int
}

// Cursor is the keyset position for vehicle pages, ordered by creation.
type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, vehicle *Vehicle) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Vehicle, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Vehicle, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)

	// Update writes every mutable column guarded by the expected
	// version; zero affected rows means the row changed underneath the
	// caller (or never existed).
	Update(ctx context.Context, db *gorm.DB, vehicle *Vehicle, expectedVersion int64) (int64, error)

	// UpdateState flips state only when the row is still in from, so
	// concurrent transitions lose deterministically.
	UpdateState(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to State, at time.Time) (int64, error)

	UpdateLocation(ctx context.Context, db *gorm.DB, id uuid.UUID, lat, lng float64, routeProgress, bearingDeg *float64, at time.Time) (int64, error)

	// RaiseMileage lifts the stored mileage to readingKm when higher;
	// lower readings leave the row untouched but still count as a hit.
	RaiseMileage(ctx context.Context, db *gorm.DB, id uuid.UUID, readingKm int64, at time.Time) (int64, error)

	LatestOdometer(ctx context.Context, db *gorm.DB, vehicleID uuid.UUID) (*OdometerReading, error)
	InsertOdometer(ctx context.Context, db *gorm.DB, reading *OdometerReading) error
}
