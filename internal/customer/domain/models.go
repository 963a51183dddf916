package domain

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email               string    `gorm:"type:text;not null;uniqueIndex:ux_customers_email" json:"email"`
	Phone               string    `gorm:"type:text" json:"phone"`
	FirstName           string    `gorm:"type:text;not null" json:"firstName"`
	LastName            string    `gorm:"type:text;not null" json:"lastName"`
	DriverLicenseNumber string    `gorm:"type:text;not null;uniqueIndex:ux_customers_license" json:"driverLicenseNumber"`
	DriverLicenseExpiry time.Time `gorm:"not null" json:"driverLicenseExpiry"`
	AddressLine1        string    `gorm:"type:text" json:"addressLine1"`
	AddressLine2        string    `gorm:"type:text" json:"addressLine2,omitempty"`
	City                string    `gorm:"type:text" json:"city"`
	Province            string    `gorm:"type:text" json:"province"`
	PostalCode          string    `gorm:"type:text" json:"postalCode"`
	IsActive            bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt           time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"not null" json:"updatedAt"`
}

func (Customer) TableName() string { return "customers" }

// CanRent reports whether the customer may start a new rental. The
// license must still be valid on the day the rental is created.
func (c *Customer) CanRent(now time.Time) bool {
	return c.IsActive && c.DriverLicenseExpiry.After(now)
}
