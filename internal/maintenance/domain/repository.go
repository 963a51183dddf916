package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status    Status
	VehicleID *uuid.UUID
	Cursor    *Cursor
	Limit     int
}

type Cursor struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, job *MaintenanceJob) error
	InsertPart(ctx context.Context, db *gorm.DB, part *MaintenancePart) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*MaintenanceJob, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*MaintenanceJob, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)

	// The guarded updates include the expected status in the WHERE clause
	// and report affected rows so callers detect lost races.
	Start(ctx context.Context, db *gorm.DB, id uuid.UUID, startedAt, at time.Time) (int64, error)
	Complete(ctx context.Context, db *gorm.DB, id uuid.UUID, completedAt time.Time, laborCost, partsCost, totalCost int64, notes string, at time.Time) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to Status, at time.Time) (int64, error)
}
