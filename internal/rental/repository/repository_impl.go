package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/rental/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, rental *domain.Rental) error {
	if rental == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO rentals (
			id, rental_number, customer_id, vehicle_id, status,
			start_date, end_date, actual_start_date, actual_end_date,
			daily_rate, total_amount, currency,
			start_odometer_km, end_odometer_km,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rental.ID,
		rental.RentalNumber,
		rental.CustomerID,
		rental.VehicleID,
		rental.Status,
		rental.StartDate,
		rental.EndDate,
		rental.ActualStartDate,
		rental.ActualEndDate,
		rental.DailyRate,
		rental.TotalAmount,
		rental.Currency,
		rental.StartOdometerKm,
		rental.EndOdometerKm,
		rental.CreatedAt,
		rental.UpdatedAt,
	).Error
}

func (r *repo) InsertPeriod(ctx context.Context, db *gorm.DB, period *domain.RentalPeriod) error {
	if period == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO rental_periods (rental_id, vehicle_id, start_date, end_date, status)
		 VALUES (?, ?, ?, ?, ?)`,
		period.RentalID,
		period.VehicleID,
		period.StartDate,
		period.EndDate,
		period.Status,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Rental, error) {
	var rental domain.Rental
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&rental).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rental, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Rental, error) {
	var rentals []*domain.Rental
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Rental{}), filter)

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

	if err := stmt.Find(&rentals).Error; err != nil {
		return nil, err
	}
	return rentals, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var count int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Rental{}), filter).Count(&count).Error
	return count, err
}

// CountOverlapping applies the same half-open intersection the exclusion
// constraint evaluates, so the pre-check and the constraint agree on
// back-to-back bookings sharing a boundary instant.
func (r *repo) CountOverlapping(ctx context.Context, db *gorm.DB, vehicleID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.RentalPeriod{}).
		Where("vehicle_id = ?", vehicleID).
		Where("status IN ?", []string{string(domain.StatusReserved), string(domain.StatusActive)}).
		Where("start_date < ? AND end_date > ?", end, start).
		Count(&count).Error
	return count, err
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, id uuid.UUID, actualStart time.Time, startOdometerKm int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET status = ?, actual_start_date = ?, start_odometer_km = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusActive, actualStart, startOdometerKm, at,
		id, domain.StatusReserved,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, id uuid.UUID, actualEnd time.Time, endOdometerKm int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET status = ?, actual_end_date = ?, end_odometer_km = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted, actualEnd, endOdometerKm, at,
		id, domain.StatusActive,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to domain.Status, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE rentals
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, at, id, from,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdatePeriodStatus(ctx context.Context, db *gorm.DB, rentalID uuid.UUID, to domain.Status) error {
	return db.WithContext(ctx).Exec(
		`UPDATE rental_periods SET status = ? WHERE rental_id = ?`,
		to, rentalID,
	).Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.VehicleID != nil {
		stmt = stmt.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if filter.CustomerID != nil {
		stmt = stmt.Where("customer_id = ?", *filter.CustomerID)
	}
	return stmt
}
