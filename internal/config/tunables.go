package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Tunables are operational knobs that may change without a redeploy.
type Tunables struct {
	RateLimits   RateLimitTunables    `mapstructure:"rateLimits"`
	Cache        CacheTunables        `mapstructure:"cache"`
	Idempotency  IdempotencyTunables  `mapstructure:"idempotency"`
	Housekeeping HousekeepingTunables `mapstructure:"housekeeping"`
}

// RateLimitQuota is a bucket size over a refill window.
type RateLimitQuota struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RateLimitTunables struct {
	PublicAPI        RateLimitQuota `mapstructure:"publicApi"`
	AuthStrict       RateLimitQuota `mapstructure:"authStrict"`
	AuthenticatedAPI RateLimitQuota `mapstructure:"authenticatedApi"`
	Global           RateLimitQuota `mapstructure:"global"`
}

type CacheTunables struct {
	VehicleTTL time.Duration `mapstructure:"vehicleTtl"`
}

type IdempotencyTunables struct {
	DefaultTTL time.Duration `mapstructure:"defaultTtl"`
	MaxTTL     time.Duration `mapstructure:"maxTtl"`
}

type HousekeepingTunables struct {
	PurgeInterval     time.Duration `mapstructure:"purgeInterval"`
	OverdueInterval   time.Duration `mapstructure:"overdueInterval"`
	OutboxInterval    time.Duration `mapstructure:"outboxInterval"`
	OutboxBatchSize   int           `mapstructure:"outboxBatchSize"`
	OutboxMaxAttempts int           `mapstructure:"outboxMaxAttempts"`
	JobTimeout        time.Duration `mapstructure:"jobTimeout"`
}

func DefaultTunables() Tunables {
	return Tunables{
		RateLimits: RateLimitTunables{
			PublicAPI:        RateLimitQuota{Requests: 100, Window: time.Minute},
			AuthStrict:       RateLimitQuota{Requests: 5, Window: time.Minute},
			AuthenticatedAPI: RateLimitQuota{Requests: 500, Window: time.Minute},
			Global:           RateLimitQuota{Requests: 5, Window: time.Minute},
		},
		Cache: CacheTunables{
			VehicleTTL: 5 * time.Minute,
		},
		Idempotency: IdempotencyTunables{
			DefaultTTL: time.Hour,
			MaxTTL:     24 * time.Hour,
		},
		Housekeeping: HousekeepingTunables{
			PurgeInterval:     5 * time.Minute,
			OverdueInterval:   time.Hour,
			OutboxInterval:    30 * time.Second,
			OutboxBatchSize:   100,
			OutboxMaxAttempts: 5,
			JobTimeout:        2 * time.Minute,
		},
	}
}

// TunablesHolder serves the current tunables snapshot and hot-reloads
// fleetcore.yml when it changes on disk.
type TunablesHolder struct {
	current atomic.Value // holds Tunables
}

func NewTunablesHolder() (*TunablesHolder, error) {
	v := viper.New()

	v.SetConfigName("fleetcore")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fleetcore/config")
	v.AddConfigPath("/etc/fleetcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLEETCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &TunablesHolder{}
	defaults := DefaultTunables()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(defaults)
		return holder, nil
	}

	cfg := defaults
	if err := v.UnmarshalKey("tunables", &cfg); err != nil {
		return nil, err
	}
	if err := validateTunables(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultTunables()
		if err := v.UnmarshalKey("tunables", &updated); err != nil {
			log.Printf("[tunables] reload failed: %v", err)
			return
		}
		if err := validateTunables(updated); err != nil {
			log.Printf("[tunables] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[tunables] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *TunablesHolder) Get() Tunables {
	return h.current.Load().(Tunables)
}

func validateTunables(cfg Tunables) error {
	for _, quota := range []RateLimitQuota{
		cfg.RateLimits.PublicAPI,
		cfg.RateLimits.AuthStrict,
		cfg.RateLimits.AuthenticatedAPI,
		cfg.RateLimits.Global,
	} {
		if quota.Requests <= 0 || quota.Window <= 0 {
			return errors.New("rate limit quotas must be positive")
		}
	}
	if cfg.Idempotency.DefaultTTL <= 0 || cfg.Idempotency.MaxTTL < cfg.Idempotency.DefaultTTL {
		return errors.New("idempotency ttl bounds are inconsistent")
	}
	if cfg.Housekeeping.OutboxBatchSize <= 0 {
		return errors.New("housekeeping.outboxBatchSize must be positive")
	}
	return nil
}
