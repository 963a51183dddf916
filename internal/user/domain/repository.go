package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)

	CreateToken(ctx context.Context, db *gorm.DB, token *RefreshToken) error
	FindTokenByHash(ctx context.Context, db *gorm.DB, hash string) (*RefreshToken, error)
	// RevokeToken marks a single live token revoked. Zero rows means the
	// token was already revoked by a concurrent request.
	RevokeToken(ctx context.Context, db *gorm.DB, id uuid.UUID, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, db *gorm.DB, userID uuid.UUID, at time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
