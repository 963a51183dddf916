package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karsada/fleetcore/internal/config"
)

func TestQuotaRate(t *testing.T) {
	rate, burst := quotaRate(config.RateLimitQuota{Requests: 100, Window: time.Minute})
	require.InDelta(t, 100.0/60.0, rate, 0.0001)
	require.Equal(t, 100, burst)

	rate, burst = quotaRate(config.RateLimitQuota{Requests: 5, Window: time.Minute})
	require.InDelta(t, 5.0/60.0, rate, 0.0001)
	require.Equal(t, 5, burst)
}

func TestQuotaRateDefaultsInvalidWindow(t *testing.T) {
	rate, burst := quotaRate(config.RateLimitQuota{Requests: 10})
	require.InDelta(t, 10.0/60.0, rate, 0.0001)
	require.Equal(t, 10, burst)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	var limiter *Limiter
	require.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), ClassAuthStrict, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	token, ok, err := limiter.TryLockVehicle(context.Background(), "veh_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, token)
	require.NoError(t, limiter.ReleaseVehicle(context.Background(), "veh_1", token))
}

func TestBucketTTLCoversRefill(t *testing.T) {
	ttl := bucketTTL(100.0/60.0, 100)
	require.Equal(t, 120*time.Second, ttl)

	ttl = bucketTTL(5.0/60.0, 5)
	require.Equal(t, 120*time.Second, ttl)
}
