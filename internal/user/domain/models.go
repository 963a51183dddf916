package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Roles a user account can carry. Every role maps onto a policy bundle
// in the authorization layer.
const (
	RoleAdmin        = "ADMIN"
	RoleFleetManager = "FLEET_MANAGER"
	RoleRentalAgent  = "RENTAL_AGENT"
	RoleFinanceOwner = "FINANCE_OWNER"
	RoleCustomer     = "CUSTOMER"
)

// ValidRole reports whether the role name is one the system knows.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleFleetManager, RoleRentalAgent, RoleFinanceOwner, RoleCustomer:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string         `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	PasswordHash string         `gorm:"type:text;not null" json:"-"`
	FirstName    string         `gorm:"type:text;not null" json:"firstName"`
	LastName     string         `gorm:"type:text;not null" json:"lastName"`
	Roles        pq.StringArray `gorm:"type:text[];not null" json:"roles"`
	IsActive     bool           `gorm:"not null;default:true" json:"isActive"`
	CreatedAt    time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// HasRole reports whether the account carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RefreshToken is one live credential in a user's refresh chain. Only
// the SHA-256 of the opaque token is stored. Revoked rows stay until
// expiry so a replay of a rotated token can still be recognized.
type RefreshToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index:ix_refresh_tokens_user" json:"userId"`
	TokenHash string     `gorm:"type:text;not null;uniqueIndex:ux_refresh_tokens_hash" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index:ix_refresh_tokens_expiry" json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"createdAt"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
