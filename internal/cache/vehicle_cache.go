package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/karsada/fleetcore/internal/config"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

const (
	keyVehicle = "vehicle:%s"

	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
)

// VehicleCache keeps hot vehicle reads out of the database. Lookups are
// cache-aside: the service reads through on a miss and sets the entry
// without waiting for the write. Entries are never invalidated; the
// optimistic version column on vehicles keeps stale reads harmless and
// the TTL bounds the staleness window.
type VehicleCache struct {
	enabled  bool
	client   *redis.Client
	log      *zap.Logger
	metrics  *telemetry.Metrics
	tunables *config.TunablesHolder
}

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Metrics  *telemetry.Metrics     `optional:"true"`
	Tunables *config.TunablesHolder `optional:"true"`
}

// NewVehicleCache returns nil when Redis is not configured; every method
// degrades to a miss so the read path still works.
func NewVehicleCache(p Params) *VehicleCache {
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.RedisPassword),
		DB:       p.Config.RedisDB,
	})

	return &VehicleCache{
		enabled:  true,
		client:   client,
		log:      p.Log.Named("cache.vehicle"),
		metrics:  p.Metrics,
		tunables: p.Tunables,
	}
}

func (c *VehicleCache) Enabled() bool {
	return c != nil && c.enabled
}

// Get returns the cached vehicle, if any. Redis errors count as misses.
func (c *VehicleCache) Get(ctx context.Context, id string) (*vehicledomain.Vehicle, bool) {
	if !c.Enabled() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, vehicleKey(id)).Bytes()
	if err == redis.Nil {
		c.metrics.ObserveCacheLookup("vehicle", false)
		return nil, false
	}
	if err != nil {
		c.log.Warn("vehicle cache read failed", zap.String("vehicle_id", id), zap.Error(err))
		c.metrics.ObserveCacheLookup("vehicle", false)
		return nil, false
	}

	var vehicle vehicledomain.Vehicle
	if err := json.Unmarshal(raw, &vehicle); err != nil {
		c.log.Warn("vehicle cache entry corrupt", zap.String("vehicle_id", id), zap.Error(err))
		c.metrics.ObserveCacheLookup("vehicle", false)
		return nil, false
	}

	c.metrics.ObserveCacheLookup("vehicle", true)
	return &vehicle, true
}

// Set stores the vehicle for the configured TTL. Failures only log;
// callers never wait on the cache.
func (c *VehicleCache) Set(ctx context.Context, vehicle *vehicledomain.Vehicle) {
	if !c.Enabled() || vehicle == nil {
		return
	}

	raw, err := json.Marshal(vehicle)
	if err != nil {
		c.log.Warn("vehicle cache encode failed", zap.String("vehicle_id", vehicle.ID.String()), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.client.Set(ctx, vehicleKey(vehicle.ID.String()), raw, c.vehicleTTL()).Err(); err != nil {
		c.log.Warn("vehicle cache write failed", zap.String("vehicle_id", vehicle.ID.String()), zap.Error(err))
	}
}

func (c *VehicleCache) vehicleTTL() time.Duration {
	ttl := config.DefaultTunables().Cache.VehicleTTL
	if c.tunables != nil {
		if live := c.tunables.Get().Cache.VehicleTTL; live > 0 {
			ttl = live
		}
	}
	return ttl
}

func vehicleKey(id string) string {
	return fmt.Sprintf(keyVehicle, strings.ToLower(strings.TrimSpace(id)))
}

// Module provides the vehicle cache to the graph.
var Module = fx.Module("cache",
	fx.Provide(NewVehicleCache),
)
