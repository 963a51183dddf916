package domain

import (
	"context"
	"errors"
	"time"

	"github.com/karsada/fleetcore/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Rental, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*Rental, error)
	Activate(ctx context.Context, req ActivateRequest) (*Rental, error)
	Complete(ctx context.Context, req CompleteRequest) (*Rental, error)
	Cancel(ctx context.Context, id string) (*Rental, error)
}

type CreateRequest struct {
	VehicleID  string    `json:"vehicleId"`
	CustomerID string    `json:"customerId"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
}

type ListRequest struct {
	pagination.Pagination

	Status     string `form:"status"`
	VehicleID  string `form:"vehicleId"`
	CustomerID string `form:"customerId"`
}

type ListResponse struct {
	pagination.PageInfo

	Rentals []Rental `json:"items"`
}

type ActivateRequest struct {
	ID              string `json:"-"`
	StartOdometerKm int64  `json:"startOdometerKm"`
}

type CompleteRequest struct {
	ID           string `json:"-"`
	FinalMileage int64  `json:"finalMileage"`
}

var (
	ErrInvalidID           = errors.New("invalid_rental_id")
	ErrNotFound            = errors.New("rental_not_found")
	ErrInvalidPeriod       = errors.New("invalid_rental_period")
	ErrInvalidStatus       = errors.New("invalid_rental_status")
	ErrInvalidOdometer     = errors.New("invalid_start_odometer")
	ErrInvalidFinalMileage = errors.New("invalid_final_mileage")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrConflict            = errors.New("rental_conflict")
	ErrNotReserved         = errors.New("rental_not_reserved")
	ErrNotActive           = errors.New("rental_not_active")
	ErrNotCancellable      = errors.New("rental_not_cancellable")
)
