package domain

import (
	"context"
	"errors"
	"time"

	"github.com/karsada/fleetcore/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Vehicle, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*Vehicle, error)
	Update(ctx context.Context, req UpdateRequest) (*Vehicle, error)
	ChangeState(ctx context.Context, id string, next State) (*Vehicle, error)
	Retire(ctx context.Context, id string) (*Vehicle, error)
	RecordOdometer(ctx context.Context, req OdometerRequest) (*OdometerReading, error)
	UpdateLocation(ctx context.Context, req LocationRequest) (*Vehicle, error)
}

type CreateRequest struct {
	VIN               string `json:"vin"`
	Plate             string `json:"plate"`
	Make              string `json:"make"`
	Model             string `json:"model"`
	Year              int    `json:"year"`
	Color             string `json:"color"`
	MileageKm         int64  `json:"mileageKm"`
	DailyRateAmount   int64  `json:"dailyRateAmount"`
	Currency          string `json:"currency"`
	PassengerCapacity int    `json:"passengerCapacity"`
}

type ListRequest struct {
	pagination.Pagination
	State string `form:"state"`
	Make  string `form:"make"`
	Plate string `form:"plate"`
}

type ListResponse struct {
	pagination.PageInfo
	Vehicles []Vehicle `json:"items"`
}

// UpdateRequest patches vehicle attributes. Version is the version the
// caller read; a mismatch at write time loses the optimistic race.
type UpdateRequest struct {
	ID      string `json:"-"`
	Version int64  `json:"version"`

	Plate             *string `json:"plate"`
	Make              *string `json:"make"`
	Model             *string `json:"model"`
	Year              *int    `json:"year"`
	Color             *string `json:"color"`
	DailyRateAmount   *int64  `json:"dailyRateAmount"`
	PassengerCapacity *int    `json:"passengerCapacity"`
}

type OdometerRequest struct {
	VehicleID  string         `json:"-"`
	ReadingKm  int64          `json:"readingKm"`
	Source     OdometerSource `json:"source"`
	RecordedAt *time.Time     `json:"recordedAt"`
}

type LocationRequest struct {
	VehicleID     string   `json:"-"`
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	RouteProgress *float64 `json:"routeProgress"`
	BearingDeg    *float64 `json:"bearingDeg"`
}

var (
	ErrInvalidID         = errors.New("invalid_vehicle_id")
	ErrNotFound          = errors.New("vehicle_not_found")
	ErrInvalidVIN        = errors.New("invalid_vin")
	ErrInvalidPlate      = errors.New("invalid_plate")
	ErrInvalidMake       = errors.New("invalid_make")
	ErrInvalidModel      = errors.New("invalid_model")
	ErrInvalidYear       = errors.New("invalid_year")
	ErrInvalidSource     = errors.New("invalid_odometer_source")
	ErrInvalidMileage    = errors.New("invalid_mileage")
	ErrInvalidDailyRate  = errors.New("invalid_daily_rate")
	ErrInvalidCapacity   = errors.New("invalid_passenger_capacity")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidState      = errors.New("invalid_vehicle_state")
	ErrInvalidTransition = errors.New("invalid_state_transition")
	ErrInvalidLocation   = errors.New("invalid_location")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrDuplicateVIN      = errors.New("duplicate_vin")
	ErrDuplicatePlate    = errors.New("duplicate_plate")
	ErrVersionConflict   = errors.New("vehicle_version_conflict")
	ErrNotAvailable      = errors.New("vehicle_not_available")
	ErrMileageDecreasing = errors.New("odometer_decreasing")
	ErrMissingVersion    = errors.New("missing_version")
)
