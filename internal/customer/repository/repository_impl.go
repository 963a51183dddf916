package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/customer/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	if customer == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (
			id, email, phone, first_name, last_name,
			driver_license_number, driver_license_expiry,
			address_line1, address_line2, city, province, postal_code,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.Email,
		customer.Phone,
		customer.FirstName,
		customer.LastName,
		customer.DriverLicenseNumber,
		customer.DriverLicenseExpiry,
		customer.AddressLine1,
		customer.AddressLine2,
		customer.City,
		customer.Province,
		customer.PostalCode,
		customer.IsActive,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Customer, error) {
	var customers []*domain.Customer
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Customer{}), filter)

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

	if err := stmt.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var count int64
	err := applyFilter(db.WithContext(ctx).Model(&domain.Customer{}), filter).Count(&count).Error
	return count, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	if customer == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET phone = ?, first_name = ?, last_name = ?,
		     driver_license_expiry = ?, address_line1 = ?, address_line2 = ?,
		     city = ?, province = ?, postal_code = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		customer.Phone,
		customer.FirstName,
		customer.LastName,
		customer.DriverLicenseExpiry,
		customer.AddressLine1,
		customer.AddressLine2,
		customer.City,
		customer.Province,
		customer.PostalCode,
		customer.IsActive,
		customer.UpdatedAt,
		customer.ID,
	).Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if email := strings.TrimSpace(filter.Email); email != "" {
		stmt = stmt.Where("email = ?", strings.ToLower(email))
	}
	if license := strings.TrimSpace(filter.License); license != "" {
		stmt = stmt.Where("driver_license_number = ?", license)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		stmt = stmt.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR email LIKE ?", like, like, like)
	}
	return stmt
}
