package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the rental lifecycle state.
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusReserved, StatusActive, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Blocking reports whether the status holds the vehicle's booking window.
// Only blocking rows participate in the overlap exclusion.
func (s Status) Blocking() bool {
	return s == StatusReserved || s == StatusActive
}

// Rental is one booking of a vehicle by a customer. The daily rate and
// currency are copied from the vehicle at reservation time so later rate
// changes never reprice an existing booking.
type Rental struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RentalNumber    string     `gorm:"type:varchar(40);not null;uniqueIndex:ux_rentals_number" json:"rentalNumber"`
	CustomerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"customerId"`
	VehicleID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"vehicleId"`
	Status          Status     `gorm:"type:varchar(20);not null;index" json:"status"`
	StartDate       time.Time  `gorm:"not null" json:"startDate"`
	EndDate         time.Time  `gorm:"not null" json:"endDate"`
	ActualStartDate *time.Time `json:"actualStartDate,omitempty"`
	ActualEndDate   *time.Time `json:"actualEndDate,omitempty"`
	DailyRate       int64      `gorm:"not null" json:"dailyRate"`
	TotalAmount     int64      `gorm:"not null" json:"totalAmount"`
	Currency        string     `gorm:"type:varchar(3);not null;default:'PHP'" json:"currency"`
	StartOdometerKm *int64     `json:"startOdometerKm,omitempty"`
	EndOdometerKm   *int64     `json:"endOdometerKm,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (Rental) TableName() string { return "rentals" }

// Activate moves a reservation to ACTIVE and records the handover facts.
func (r *Rental) Activate(at time.Time, startOdometerKm int64) error {
	if r.Status != StatusReserved {
		return ErrNotReserved
	}
	r.Status = StatusActive
	r.ActualStartDate = &at
	r.StartOdometerKm = &startOdometerKm
	return nil
}

// Complete closes an active rental with the returned odometer reading.
func (r *Rental) Complete(at time.Time, endOdometerKm int64) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	if r.StartOdometerKm != nil && endOdometerKm < *r.StartOdometerKm {
		return ErrInvalidFinalMileage
	}
	r.Status = StatusCompleted
	r.ActualEndDate = &at
	r.EndOdometerKm = &endOdometerKm
	return nil
}

// Cancel releases a reservation or an active rental.
func (r *Rental) Cancel() error {
	if !r.Status.Blocking() {
		return ErrNotCancellable
	}
	r.Status = StatusCancelled
	return nil
}

// RentalPeriod is the companion row the overlap exclusion constraint
// watches. It is written in the same transaction as the rental itself.
type RentalPeriod struct {
	RentalID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"rentalId"`
	VehicleID uuid.UUID `gorm:"type:uuid;not null;index" json:"vehicleId"`
	StartDate time.Time `gorm:"not null" json:"startDate"`
	EndDate   time.Time `gorm:"not null" json:"endDate"`
	Status    Status    `gorm:"type:varchar(20);not null" json:"status"`
}

func (RentalPeriod) TableName() string { return "rental_periods" }
