package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, rawToken string) (*LoginResult, error)
	Me(ctx context.Context, id uuid.UUID) (*User, error)
	// PurgeTokens drops refresh tokens past their expiry. Revoked rows
	// are kept until then so replayed tokens stay detectable.
	PurgeTokens(ctx context.Context) (int64, error)
}

// RegisterRequest deliberately has no roles field. Public registration
// always yields a CUSTOMER; elevated roles come from seeding.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	User                  *User     `json:"user"`
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

var (
	ErrInvalidID           = errors.New("invalid_user_id")
	ErrNotFound            = errors.New("user_not_found")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidName         = errors.New("invalid_name")
	ErrWeakPassword        = errors.New("password_too_short")
	ErrEmailTaken          = errors.New("email_taken")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrUserDisabled        = errors.New("user_disabled")
	ErrInvalidRefreshToken = errors.New("invalid_refresh_token")
)
