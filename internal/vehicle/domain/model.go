package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the operational status of a fleet vehicle.
type State string

const (
	StateAvailable   State = "AVAILABLE"
	StateRented      State = "RENTED"
	StateMaintenance State = "MAINTENANCE"
	StateRetired     State = "RETIRED"
)

func (s State) IsValid() bool {
	switch s {
	case StateAvailable, StateRented, StateMaintenance, StateRetired:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving to
// next. RETIRED is terminal; RENTED and MAINTENANCE only return to
// AVAILABLE.
func (s State) CanTransitionTo(next State) bool {
	if !next.IsValid() || s == next {
		return false
	}
	if next == StateRetired {
		return s != StateRetired
	}
	switch s {
	case StateAvailable:
		return next == StateRented || next == StateMaintenance
	case StateRented, StateMaintenance:
		return next == StateAvailable
	}
	return false
}

// OdometerSource records who produced an odometer reading.
type OdometerSource string

const (
	OdometerSourceManual           OdometerSource = "MANUAL"
	OdometerSourceRentalCompletion OdometerSource = "RENTAL_COMPLETION"
)

type Vehicle struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VIN               string    `gorm:"column:vin;type:varchar(17);not null;uniqueIndex:ux_vehicles_vin" json:"vin"`
	Plate             string    `gorm:"type:text;not null;uniqueIndex:ux_vehicles_plate" json:"plate"`
	Make              string    `gorm:"type:text;not null" json:"make"`
	Model             string    `gorm:"type:text;not null" json:"model"`
	Year              int       `gorm:"not null" json:"year"`
	Color             string    `gorm:"type:text" json:"color"`
	State             State     `gorm:"type:text;not null;index" json:"state"`
	MileageKm         int64     `gorm:"not null;default:0" json:"mileageKm"`
	DailyRateAmount   int64     `gorm:"not null" json:"dailyRateAmount"`
	Currency          string    `gorm:"type:text;not null;default:'PHP'" json:"currency"`
	PassengerCapacity int       `gorm:"not null" json:"passengerCapacity"`
	LastLat           *float64  `json:"lastLat,omitempty"`
	LastLng           *float64  `json:"lastLng,omitempty"`
	RouteProgress     float64   `gorm:"not null;default:0" json:"routeProgress"`
	BearingDeg        float64   `gorm:"not null;default:0" json:"bearingDeg"`
	Version           int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"not null" json:"updatedAt"`
}

func (Vehicle) TableName() string { return "vehicles" }

// Transition mutates the state after checking the machine. Callers
// persist with an optimistic version guard.
func (v *Vehicle) Transition(next State) error {
	if !v.State.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	v.State = next
	return nil
}

// RecordMileage folds a reading into the stored mileage, which never
// decreases.
func (v *Vehicle) RecordMileage(readingKm int64) {
	if readingKm > v.MileageKm {
		v.MileageKm = readingKm
	}
}

// OdometerReading is an append-only log of reported odometer values. A
// storage trigger rejects any reading below the latest one for the same
// vehicle.
type OdometerReading struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	VehicleID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"vehicleId"`
	ReadingKm  int64          `gorm:"not null" json:"readingKm"`
	RecordedAt time.Time      `gorm:"not null" json:"recordedAt"`
	Source     OdometerSource `gorm:"type:text;not null" json:"source"`
}

func (OdometerReading) TableName() string { return "odometer_readings" }
