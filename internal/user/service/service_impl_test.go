package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/auth/token"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/user/domain"
	"github.com/karsada/fleetcore/internal/user/repository"
)

const testPassword = "sampaguita-2026"

type rig struct {
	svc    *Service
	db     *gorm.DB
	clock  *clock.FakeClock
	tokens *token.Manager
}

func newUserRig(t *testing.T) *rig {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.RefreshToken{}))

	fake := clock.NewFakeClock(time.Date(2026, 8, 15, 8, 0, 0, 0, time.UTC))
	tokens := token.NewManager(token.Params{
		Cfg: config.Config{
			JWTSecret:   strings.Repeat("0123456789abcdef", 4),
			JWTIssuer:   "fleetcore",
			JWTAudience: "fleetcore-api",
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  720 * time.Hour,
		},
		Clock: fake,
	})

	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fake,
		Repo:   repository.Provide(),
		Tokens: tokens,
	})
	return &rig{svc: svc.(*Service), db: db, clock: fake, tokens: tokens}
}

func registerUser(t *testing.T, r *rig, email string) *domain.User {
	t.Helper()
	user, err := r.svc.Register(context.Background(), domain.RegisterRequest{
		Email:     email,
		Password:  testPassword,
		FirstName: "Maria",
		LastName:  "Santos",
	})
	require.NoError(t, err)
	return user
}

func countTokens(t *testing.T, r *rig, revoked bool) int64 {
	t.Helper()
	var n int64
	stmt := r.db.Model(&domain.RefreshToken{})
	if revoked {
		stmt = stmt.Where("revoked_at IS NOT NULL")
	} else {
		stmt = stmt.Where("revoked_at IS NULL")
	}
	require.NoError(t, stmt.Count(&n).Error)
	return n
}

func TestRegister(t *testing.T) {
	r := newUserRig(t)

	user, err := r.svc.Register(context.Background(), domain.RegisterRequest{
		Email:     " Maria.Santos@Example.COM ",
		Password:  testPassword,
		FirstName: "  Maria ",
		LastName:  "Santos",
	})
	require.NoError(t, err)

	assert.Equal(t, "maria.santos@example.com", user.Email)
	assert.Equal(t, "Maria", user.FirstName)
	assert.Equal(t, []string{domain.RoleCustomer}, []string(user.Roles))
	assert.True(t, user.IsActive)
	assert.True(t, user.HasRole(domain.RoleCustomer))
	assert.False(t, user.HasRole(domain.RoleAdmin))

	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$"))

	// The hash must never leave the service as JSON.
	encoded, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "argon2id")
}

func TestRegisterValidation(t *testing.T) {
	r := newUserRig(t)

	cases := []struct {
		name string
		req  domain.RegisterRequest
		want error
	}{
		{"bad email", domain.RegisterRequest{Email: "not-an-email", Password: testPassword, FirstName: "Maria", LastName: "Santos"}, domain.ErrInvalidEmail},
		{"blank email", domain.RegisterRequest{Email: "", Password: testPassword, FirstName: "Maria", LastName: "Santos"}, domain.ErrInvalidEmail},
		{"short password", domain.RegisterRequest{Email: "maria@example.com", Password: "1234567", FirstName: "Maria", LastName: "Santos"}, domain.ErrWeakPassword},
		{"blank first name", domain.RegisterRequest{Email: "maria@example.com", Password: testPassword, FirstName: "  ", LastName: "Santos"}, domain.ErrInvalidName},
		{"blank last name", domain.RegisterRequest{Email: "maria@example.com", Password: testPassword, FirstName: "Maria", LastName: ""}, domain.ErrInvalidName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.svc.Register(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var n int64
	require.NoError(t, r.db.Model(&domain.User{}).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r := newUserRig(t)
	registerUser(t, r, "maria@example.com")

	_, err := r.svc.Register(context.Background(), domain.RegisterRequest{
		Email:     "MARIA@example.com",
		Password:  testPassword,
		FirstName: "Impostor",
		LastName:  "Santos",
	})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	r := newUserRig(t)
	user := registerUser(t, r, "maria@example.com")

	result, err := r.svc.Login(context.Background(), domain.LoginRequest{
		Email:    "maria@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NotNil(t, result.User)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, r.clock.Now().Add(15*time.Minute), result.AccessTokenExpiresAt)
	assert.Equal(t, r.clock.Now().Add(720*time.Hour), result.RefreshTokenExpiresAt)

	principal, err := r.tokens.VerifyAccess(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, "maria@example.com", principal.Email)
	assert.Equal(t, []string{domain.RoleCustomer}, principal.Roles)

	assert.EqualValues(t, 1, countTokens(t, r, false))
}

func TestLoginFailuresShareOneError(t *testing.T) {
	r := newUserRig(t)
	registerUser(t, r, "maria@example.com")

	// Unknown email and wrong password must be the same failure.
	_, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "nobody@example.com", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	assert.EqualValues(t, 0, countTokens(t, r, false))
}

func TestLoginDisabledUser(t *testing.T) {
	r := newUserRig(t)
	user := registerUser(t, r, "maria@example.com")
	require.NoError(t, r.db.Exec(`UPDATE users SET is_active = ? WHERE id = ?`, false, user.ID).Error)

	_, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrUserDisabled)

	// A wrong password on a disabled account must not reveal its state.
	_, err = r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRefreshRotation(t *testing.T) {
	r := newUserRig(t)
	user := registerUser(t, r, "maria@example.com")

	first, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	second, err := r.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, second.User.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	principal, err := r.tokens.VerifyAccess(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)

	// One live token after rotation, the spent one kept as revoked.
	assert.EqualValues(t, 1, countTokens(t, r, false))
	assert.EqualValues(t, 1, countTokens(t, r, true))
}

func TestRefreshReuseBurnsTheChain(t *testing.T) {
	r := newUserRig(t)
	registerUser(t, r, "maria@example.com")

	first, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	second, err := r.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)

	// Replaying the rotated token revokes everything the user holds.
	_, err = r.svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	assert.EqualValues(t, 0, countTokens(t, r, false))

	_, err = r.svc.Refresh(context.Background(), second.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestRefreshRejectsExpiredAndGarbage(t *testing.T) {
	r := newUserRig(t)
	registerUser(t, r, "maria@example.com")

	result, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = r.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	_, err = r.svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

	r.clock.Advance(720*time.Hour + time.Hour)
	_, err = r.svc.Refresh(context.Background(), result.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
}

func TestRefreshDisabledUser(t *testing.T) {
	r := newUserRig(t)
	user := registerUser(t, r, "maria@example.com")

	result, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, r.db.Exec(`UPDATE users SET is_active = ? WHERE id = ?`, false, user.ID).Error)

	_, err = r.svc.Refresh(context.Background(), result.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrUserDisabled)
}

func TestMe(t *testing.T) {
	r := newUserRig(t)
	user := registerUser(t, r, "maria@example.com")

	got, err := r.svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = r.svc.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeTokens(t *testing.T) {
	r := newUserRig(t)
	registerUser(t, r, "maria@example.com")

	_, err := r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	r.clock.Advance(720*time.Hour + time.Hour)

	// A fresh token minted after the advance must survive the purge.
	_, err = r.svc.Login(context.Background(), domain.LoginRequest{Email: "maria@example.com", Password: testPassword})
	require.NoError(t, err)

	purged, err := r.svc.PurgeTokens(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	var remaining int64
	require.NoError(t, r.db.Model(&domain.RefreshToken{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}
