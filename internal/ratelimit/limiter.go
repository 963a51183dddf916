package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/karsada/fleetcore/internal/config"
)

// Class names a rate limit bucket family with its own quota.
type Class string

const (
	ClassPublicAPI        Class = "public_api"
	ClassAuthStrict       Class = "auth_strict"
	ClassAuthenticatedAPI Class = "authenticated_api"
	ClassGlobal           Class = "global"
)

const (
	keyClassBucket  = "ratelimit:%s:%s"
	keyVehicleLock  = "vehicle:handover:%s"
	keyJobLock      = "scheduler:job:%s"
	vehicleLockTTL  = 30 * time.Second
	defaultRedisKey = "anonymous"
)

// Limiter enforces per-class token bucket quotas backed by Redis. A nil
// or disabled limiter allows everything, so the API stays usable when
// Redis is not deployed.
type Limiter struct {
	enabled  bool
	bucket   *TokenBucket
	locker   *Locker
	tunables *config.TunablesHolder
}

func New(cfg config.Config, tunables *config.TunablesHolder) *Limiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &Limiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		tunables: tunables,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token from the class bucket for key (an IP or user
// ID). Quotas come from the live tunables snapshot.
func (l *Limiter) Allow(ctx context.Context, class Class, key string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}

	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRedisKey
	}

	quota := l.quotaFor(class)
	rate, burst := quotaRate(quota)
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClassBucket, class, key), rate, burst)
}

// TryLockVehicle takes a short distributed lock around a vehicle
// handover. The booking exclusion constraint remains the source of
// truth; the lock only shrinks the conflict window.
func (l *Limiter) TryLockVehicle(ctx context.Context, vehicleID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyVehicleLock, strings.TrimSpace(vehicleID)), vehicleLockTTL)
}

func (l *Limiter) ReleaseVehicle(ctx context.Context, vehicleID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyVehicleLock, strings.TrimSpace(vehicleID)), token)
}

// TryLockJob guards a housekeeping job so only one instance at a time
// runs it. The TTL should outlast the job timeout.
func (l *Limiter) TryLockJob(ctx context.Context, job string, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyJobLock, strings.TrimSpace(job)), ttl)
}

func (l *Limiter) ReleaseJob(ctx context.Context, job, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyJobLock, strings.TrimSpace(job)), token)
}

func (l *Limiter) quotaFor(class Class) config.RateLimitQuota {
	limits := config.DefaultTunables().RateLimits
	if l.tunables != nil {
		limits = l.tunables.Get().RateLimits
	}

	switch class {
	case ClassPublicAPI:
		return limits.PublicAPI
	case ClassAuthStrict:
		return limits.AuthStrict
	case ClassAuthenticatedAPI:
		return limits.AuthenticatedAPI
	default:
		return limits.Global
	}
}

// quotaRate converts a requests-per-window quota into a refill rate and
// a burst equal to the full window allowance.
func quotaRate(quota config.RateLimitQuota) (float64, int) {
	window := quota.Window
	if window <= 0 {
		window = time.Minute
	}
	requests := quota.Requests
	if requests <= 0 {
		requests = 1
	}
	return float64(requests) / window.Seconds(), requests
}
