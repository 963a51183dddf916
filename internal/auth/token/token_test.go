package token

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:   strings.Repeat("0123456789abcdef", 4),
		JWTIssuer:   "fleetcore",
		JWTAudience: "fleetcore-api",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  720 * time.Hour,
	}
}

func newTestManager(t *testing.T) (*Manager, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(time.Date(2026, 8, 15, 8, 0, 0, 0, time.UTC))
	return NewManager(Params{Cfg: testConfig(), Clock: fake}), fake
}

func TestIssueAndVerifyAccess(t *testing.T) {
	m, fake := newTestManager(t)
	userID := uuid.New()

	signed, expiresAt, err := m.IssueAccess(userID, "maria@example.com", []string{"FLEET_MANAGER", "CUSTOMER"})
	require.NoError(t, err)
	assert.Equal(t, fake.Now().Add(15*time.Minute), expiresAt)

	principal, err := m.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.UserID)
	assert.Equal(t, "maria@example.com", principal.Email)
	assert.Equal(t, []string{"FLEET_MANAGER", "CUSTOMER"}, principal.Roles)
}

func TestVerifyAccessExpired(t *testing.T) {
	m, fake := newTestManager(t)

	signed, _, err := m.IssueAccess(uuid.New(), "maria@example.com", []string{"CUSTOMER"})
	require.NoError(t, err)

	fake.Advance(14 * time.Minute)
	_, err = m.VerifyAccess(signed)
	require.NoError(t, err)

	fake.Advance(2 * time.Minute)
	_, err = m.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	m, _ := newTestManager(t)

	signed, _, err := m.IssueAccess(uuid.New(), "maria@example.com", []string{"CUSTOMER"})
	require.NoError(t, err)

	for _, raw := range []string{"", "garbage", signed + "x", signed[:len(signed)-2]} {
		_, err := m.VerifyAccess(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestVerifyAccessRejectsForeignTokens(t *testing.T) {
	m, fake := newTestManager(t)

	otherSecret := testConfig()
	otherSecret.JWTSecret = strings.Repeat("fedcba9876543210", 4)
	otherIssuer := testConfig()
	otherIssuer.JWTIssuer = "someone-else"
	otherAudience := testConfig()
	otherAudience.JWTAudience = "another-api"

	for _, cfg := range []config.Config{otherSecret, otherIssuer, otherAudience} {
		foreign := NewManager(Params{Cfg: cfg, Clock: fake})
		signed, _, err := foreign.IssueAccess(uuid.New(), "maria@example.com", []string{"CUSTOMER"})
		require.NoError(t, err)

		_, err = m.VerifyAccess(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestNewRefresh(t *testing.T) {
	m, fake := newTestManager(t)

	raw, hash, expiresAt, err := m.NewRefresh()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.NotEqual(t, raw, hash)
	assert.Equal(t, HashRefresh(raw), hash)
	assert.Equal(t, fake.Now().Add(720*time.Hour), expiresAt)

	second, secondHash, _, err := m.NewRefresh()
	require.NoError(t, err)
	assert.NotEqual(t, raw, second)
	assert.NotEqual(t, hash, secondHash)
}
