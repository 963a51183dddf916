package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/vehicle/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, vehicle *domain.Vehicle) error {
	if vehicle == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO vehicles (
			id, vin, plate, make, model, year, color, state,
			mileage_km, daily_rate_amount, currency, passenger_capacity,
			last_lat, last_lng, route_progress, bearing_deg,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vehicle.ID,
		vehicle.VIN,
		vehicle.Plate,
		vehicle.Make,
		vehicle.Model,
		vehicle.Year,
		vehicle.Color,
		vehicle.State,
		vehicle.MileageKm,
		vehicle.DailyRateAmount,
		vehicle.Currency,
		vehicle.PassengerCapacity,
		vehicle.LastLat,
		vehicle.LastLng,
		vehicle.RouteProgress,
		vehicle.BearingDeg,
		vehicle.Version,
		vehicle.CreatedAt,
		vehicle.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&vehicle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vehicle, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Vehicle, error) {
	var vehicles []*domain.Vehicle
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Vehicle{}), filter)

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

	if err := stmt.Find(&vehicles).Error; err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var count int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Vehicle{}), filter).Count(&count).Error
	return count, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, vehicle *domain.Vehicle, expectedVersion int64) (int64, error) {
	if vehicle == nil {
		return 0, gorm.ErrInvalidData
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE vehicles
		 SET plate = ?, make = ?, model = ?, year = ?, color = ?,
		     daily_rate_amount = ?, passenger_capacity = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		vehicle.Plate,
		vehicle.Make,
		vehicle.Model,
		vehicle.Year,
		vehicle.Color,
		vehicle.DailyRateAmount,
		vehicle.PassengerCapacity,
		vehicle.UpdatedAt,
		vehicle.ID,
		expectedVersion,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to domain.State, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE vehicles
		 SET state = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND state = ?`,
		to, at, id, from,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateLocation(ctx context.Context, db *gorm.DB, id uuid.UUID, lat, lng float64, routeProgress, bearingDeg *float64, at time.Time) (int64, error) {
	values := map[string]any{
		"last_lat":   lat,
		"last_lng":   lng,
		"updated_at": at,
	}
	if routeProgress != nil {
		values["route_progress"] = *routeProgress
	}
	if bearingDeg != nil {
		values["bearing_deg"] = *bearingDeg
	}

	res := db.WithContext(ctx).
		Model(&domain.Vehicle{}).
		Where("id = ?", id).
		UpdateColumns(values)
	return res.RowsAffected, res.Error
}

// RaiseMileage is a no-op when readingKm is not above the stored value;
// the affected-row count still reports 1 so callers can tell a missing
// vehicle apart from a lower reading.
func (r *repo) RaiseMileage(ctx context.Context, db *gorm.DB, id uuid.UUID, readingKm int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE vehicles
		 SET mileage_km = CASE WHEN mileage_km < ? THEN ? ELSE mileage_km END,
		     version = version + 1, updated_at = ?
		 WHERE id = ?`,
		readingKm, readingKm, at, id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) LatestOdometer(ctx context.Context, db *gorm.DB, vehicleID uuid.UUID) (*domain.OdometerReading, error) {
	var reading domain.OdometerReading
	err := db.WithContext(ctx).
		Where("vehicle_id = ?", vehicleID).
		Order("reading_km desc").
		First(&reading).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

func (r *repo) InsertOdometer(ctx context.Context, db *gorm.DB, reading *domain.OdometerReading) error {
	if reading == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO odometer_readings (id, vehicle_id, reading_km, recorded_at, source)
		 VALUES (?, ?, ?, ?, ?)`,
		reading.ID,
		reading.VehicleID,
		reading.ReadingKm,
		reading.RecordedAt,
		reading.Source,
	).Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if state := strings.TrimSpace(string(filter.State)); state != "" {
		stmt = stmt.Where("state = ?", state)
	}
	if vehicleMake := strings.TrimSpace(filter.Make); vehicleMake != "" {
		stmt = stmt.Where("LOWER(make) = LOWER(?)", vehicleMake)
	}
	if plate := strings.TrimSpace(filter.Plate); plate != "" {
		stmt = stmt.Where("plate = ?", plate)
	}
	return stmt
}
