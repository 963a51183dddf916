package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/maintenance/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, job *domain.MaintenanceJob) error {
	if job == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO maintenance_jobs (
			id, job_number, vehicle_id, status, type, priority,
			scheduled_date, started_at, completed_at,
			labor_cost, parts_cost, total_cost, notes,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.JobNumber,
		job.VehicleID,
		job.Status,
		job.Type,
		job.Priority,
		job.ScheduledDate,
		job.StartedAt,
		job.CompletedAt,
		job.LaborCost,
		job.PartsCost,
		job.TotalCost,
		job.Notes,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) InsertPart(ctx context.Context, db *gorm.DB, part *domain.MaintenancePart) error {
	if part == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO maintenance_parts (id, job_id, part_name, quantity, unit_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		part.ID,
		part.JobID,
		part.PartName,
		part.Quantity,
		part.UnitCost,
		part.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.MaintenanceJob, error) {
	var job domain.MaintenanceJob
	err := db.WithContext(ctx).
		Preload("Parts").
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.MaintenanceJob, error) {
	var jobs []*domain.MaintenanceJob
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.MaintenanceJob{}), filter).Preload("Parts")

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

	if err := stmt.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var count int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.MaintenanceJob{}), filter).Count(&count).Error
	return count, err
}

func (r *repo) Start(ctx context.Context, db *gorm.DB, id uuid.UUID, startedAt, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE maintenance_jobs
		 SET status = ?, started_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusInProgress, startedAt, at,
		id, domain.StatusScheduled,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, id uuid.UUID, completedAt time.Time, laborCost, partsCost, totalCost int64, notes string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE maintenance_jobs
		 SET status = ?, completed_at = ?, labor_cost = ?, parts_cost = ?, total_cost = ?, notes = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted, completedAt, laborCost, partsCost, totalCost, notes, at,
		id, domain.StatusInProgress,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to domain.Status, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE maintenance_jobs
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, at, id, from,
	)
	return res.RowsAffected, res.Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.VehicleID != nil {
		stmt = stmt.Where("vehicle_id = ?", *filter.VehicleID)
	}
	return stmt
}
