package domain

import (
	"context"
	"errors"
	"time"

	"github.com/karsada/fleetcore/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Customer, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*Customer, error)
	Update(ctx context.Context, req UpdateRequest) (*Customer, error)
}

type CreateRequest struct {
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	DriverLicenseNumber string    `json:"driverLicenseNumber"`
	DriverLicenseExpiry time.Time `json:"driverLicenseExpiry"`
	AddressLine1        string    `json:"addressLine1"`
	AddressLine2        string    `json:"addressLine2"`
	City                string    `json:"city"`
	Province            string    `json:"province"`
	PostalCode          string    `json:"postalCode"`
}

type ListRequest struct {
	pagination.Pagination
	Email    string `form:"email"`
	License  string `form:"license"`
	IsActive *bool  `form:"isActive"`
	Search   string `form:"search"`
}

type ListResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"items"`
}

type UpdateRequest struct {
	ID string `json:"-"`

	Phone               *string    `json:"phone"`
	FirstName           *string    `json:"firstName"`
	LastName            *string    `json:"lastName"`
	DriverLicenseExpiry *time.Time `json:"driverLicenseExpiry"`
	AddressLine1        *string    `json:"addressLine1"`
	AddressLine2        *string    `json:"addressLine2"`
	City                *string    `json:"city"`
	Province            *string    `json:"province"`
	PostalCode          *string    `json:"postalCode"`
	IsActive            *bool      `json:"isActive"`
}

var (
	ErrInvalidID        = errors.New("invalid_customer_id")
	ErrNotFound         = errors.New("customer_not_found")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidLicense   = errors.New("invalid_driver_license")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrDuplicateEmail   = errors.New("duplicate_email")
	ErrDuplicateLicense = errors.New("duplicate_driver_license")
	ErrInactive         = errors.New("customer_inactive")
	ErrLicenseExpired   = errors.New("driver_license_expired")
)
