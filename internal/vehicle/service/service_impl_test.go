package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/cache"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/internal/vehicle/repository"
	"github.com/karsada/fleetcore/pkg/db/pagination"
)

func newVehicleService(t *testing.T, vehicleCache *cache.VehicleCache) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Vehicle{}, &domain.OdometerReading{}, &events.OutboxEvent{}))

	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  fake,
		Repo:   repository.Provide(),
		Outbox: events.NewOutbox(zap.NewNop()),
		Cache:  vehicleCache,
	})
	return svc.(*Service), db, fake
}

func createVehicle(t *testing.T, svc *Service, vin, plate string, mileage int64) *domain.Vehicle {
	t.Helper()
	vehicle, err := svc.Create(context.Background(), domain.CreateRequest{
		VIN:               vin,
		Plate:             plate,
		Make:              "Toyota",
		Model:             "Vios",
		Year:              2023,
		MileageKm:         mileage,
		DailyRateAmount:   500,
		PassengerCapacity: 5,
	})
	require.NoError(t, err)
	return vehicle
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)
	ctx := context.Background()

	base := domain.CreateRequest{
		VIN:               "1HGCM82633A004352",
		Plate:             "NBC-1234",
		Make:              "Toyota",
		Model:             "Vios",
		Year:              2023,
		DailyRateAmount:   500,
		PassengerCapacity: 5,
	}

	cases := []struct {
		name    string
		mutate  func(*domain.CreateRequest)
		wantErr error
	}{
		{"short vin", func(r *domain.CreateRequest) { r.VIN = "ABC123" }, domain.ErrInvalidVIN},
		{"empty plate", func(r *domain.CreateRequest) { r.Plate = "  " }, domain.ErrInvalidPlate},
		{"empty make", func(r *domain.CreateRequest) { r.Make = "" }, domain.ErrInvalidMake},
		{"empty model", func(r *domain.CreateRequest) { r.Model = "" }, domain.ErrInvalidModel},
		{"year too old", func(r *domain.CreateRequest) { r.Year = 1899 }, domain.ErrInvalidYear},
		{"year too new", func(r *domain.CreateRequest) { r.Year = 2101 }, domain.ErrInvalidYear},
		{"negative mileage", func(r *domain.CreateRequest) { r.MileageKm = -1 }, domain.ErrInvalidMileage},
		{"negative rate", func(r *domain.CreateRequest) { r.DailyRateAmount = -100 }, domain.ErrInvalidDailyRate},
		{"zero capacity", func(r *domain.CreateRequest) { r.PassengerCapacity = 0 }, domain.ErrInvalidCapacity},
		{"foreign currency", func(r *domain.CreateRequest) { r.Currency = "USD" }, domain.ErrInvalidCurrency},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreateNormalizesAndDefaults(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)

	vehicle, err := svc.Create(context.Background(), domain.CreateRequest{
		VIN:               " 1hgcm82633a004352 ",
		Plate:             " nbc-1234 ",
		Make:              "Toyota",
		Model:             "Vios",
		Year:              2023,
		DailyRateAmount:   500,
		PassengerCapacity: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "1HGCM82633A004352", vehicle.VIN)
	assert.Equal(t, "NBC-1234", vehicle.Plate)
	assert.Equal(t, domain.StateAvailable, vehicle.State)
	assert.Equal(t, "PHP", vehicle.Currency)
	assert.Equal(t, int64(1), vehicle.Version)
}

func TestCreateRejectsDuplicateIdentity(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)
	ctx := context.Background()

	createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 0)

	_, err := svc.Create(ctx, domain.CreateRequest{
		VIN: "1HGCM82633A004352", Plate: "XYZ-9999",
		Make: "Toyota", Model: "Vios", Year: 2023, DailyRateAmount: 500, PassengerCapacity: 5,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateVIN)

	_, err = svc.Create(ctx, domain.CreateRequest{
		VIN: "2HGCM82633A004353", Plate: "NBC-1234",
		Make: "Toyota", Model: "Vios", Year: 2023, DailyRateAmount: 500, PassengerCapacity: 5,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicatePlate)
}

func TestGetReadsThroughAndServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	vehicleCache := cache.NewVehicleCache(cache.Params{
		Config: config.Config{RedisAddr: mr.Addr()},
		Log:    zap.NewNop(),
	})

	svc, db, _ := newVehicleService(t, vehicleCache)
	ctx := context.Background()

	created := createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 10000)

	got, err := svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.StateAvailable, got.State)

	// Change the row behind the cache; the entry is soft state and keeps
	// serving until the TTL expires.
	require.NoError(t, db.Exec(`UPDATE vehicles SET state = ? WHERE id = ?`, domain.StateRetired, created.ID).Error)

	got, err = svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateAvailable, got.State)

	mr.FastForward(config.DefaultTunables().Cache.VehicleTTL + time.Second)

	got, err = svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateRetired, got.State)
}

func TestGetUnknownVehicle(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)

	_, err := svc.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestUpdateGuardsOnVersion(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)
	ctx := context.Background()

	created := createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 0)

	newRate := int64(750)
	updated, err := svc.Update(ctx, domain.UpdateRequest{
		ID:              created.ID.String(),
		Version:         1,
		DailyRateAmount: &newRate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(750), updated.DailyRateAmount)
	assert.Equal(t, int64(2), updated.Version)

	// Replaying the stale version loses the optimistic race.
	_, err = svc.Update(ctx, domain.UpdateRequest{
		ID:              created.ID.String(),
		Version:         1,
		DailyRateAmount: &newRate,
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = svc.Update(ctx, domain.UpdateRequest{ID: created.ID.String()})
	assert.ErrorIs(t, err, domain.ErrMissingVersion)

	_, err = svc.Update(ctx, domain.UpdateRequest{ID: uuid.NewString(), Version: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStateMachine(t *testing.T) {
	svc, db, _ := newVehicleService(t, nil)
	ctx := context.Background()

	created := createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 0)

	rented, err := svc.ChangeState(ctx, created.ID.String(), domain.StateRented)
	require.NoError(t, err)
	assert.Equal(t, domain.StateRented, rented.State)
	assert.Equal(t, int64(2), rented.Version)

	_, err = svc.ChangeState(ctx, created.ID.String(), domain.StateMaintenance)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.ChangeState(ctx, created.ID.String(), domain.StateAvailable)
	require.NoError(t, err)

	retired, err := svc.Retire(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StateRetired, retired.State)

	_, err = svc.ChangeState(ctx, created.ID.String(), domain.StateAvailable)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	var staged int64
	require.NoError(t, db.Model(&events.OutboxEvent{}).
		Where("event_type = ?", events.EventVehicleStateChanged).
		Count(&staged).Error)
	assert.Equal(t, int64(3), staged)
}

func TestRecordOdometerMonotonic(t *testing.T) {
	svc, db, _ := newVehicleService(t, nil)
	ctx := context.Background()

	created := createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 18500)

	_, err := svc.RecordOdometer(ctx, domain.OdometerRequest{
		VehicleID: created.ID.String(),
		ReadingKm: 10000,
	})
	assert.ErrorIs(t, err, domain.ErrMileageDecreasing)

	reading, err := svc.RecordOdometer(ctx, domain.OdometerRequest{
		VehicleID: created.ID.String(),
		ReadingKm: 18600,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OdometerSourceManual, reading.Source)

	var vehicle domain.Vehicle
	require.NoError(t, db.First(&vehicle, "id = ?", created.ID).Error)
	assert.Equal(t, int64(18600), vehicle.MileageKm)

	// A second reading below the appended one is rejected even though it
	// beats the original mileage.
	_, err = svc.RecordOdometer(ctx, domain.OdometerRequest{
		VehicleID: created.ID.String(),
		ReadingKm: 18550,
	})
	assert.ErrorIs(t, err, domain.ErrMileageDecreasing)

	var count int64
	require.NoError(t, db.Model(&domain.OdometerReading{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateLocation(t *testing.T) {
	svc, _, _ := newVehicleService(t, nil)
	ctx := context.Background()

	created := createVehicle(t, svc, "1HGCM82633A004352", "NBC-1234", 0)

	_, err := svc.UpdateLocation(ctx, domain.LocationRequest{
		VehicleID: created.ID.String(),
		Lat:       91,
		Lng:       121.0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)

	badProgress := 1.5
	_, err = svc.UpdateLocation(ctx, domain.LocationRequest{
		VehicleID:     created.ID.String(),
		Lat:           14.5995,
		Lng:           120.9842,
		RouteProgress: &badProgress,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)

	progress := 0.4
	bearing := 270.0
	updated, err := svc.UpdateLocation(ctx, domain.LocationRequest{
		VehicleID:     created.ID.String(),
		Lat:           14.5995,
		Lng:           120.9842,
		RouteProgress: &progress,
		BearingDeg:    &bearing,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.LastLat)
	assert.InDelta(t, 14.5995, *updated.LastLat, 0.0001)
	assert.InDelta(t, 0.4, updated.RouteProgress, 0.0001)
	assert.InDelta(t, 270.0, updated.BearingDeg, 0.0001)

	_, err = svc.UpdateLocation(ctx, domain.LocationRequest{
		VehicleID: uuid.NewString(),
		Lat:       14.5995,
		Lng:       120.9842,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, fake := newVehicleService(t, nil)
	ctx := context.Background()

	vins := []string{
		"1HGCM82633A004351",
		"1HGCM82633A004352",
		"1HGCM82633A004353",
	}
	for i, vin := range vins {
		createVehicle(t, svc, vin, fmt.Sprintf("NBC-000%d", i+1), 0)
		fake.Advance(time.Minute)
	}

	resp, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Vehicles, 3)
	assert.Equal(t, int64(3), resp.Total)

	first, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, first.Vehicles, 2)
	require.NotNil(t, first.NextCursor)

	second, err := svc.List(ctx, domain.ListRequest{
		Pagination: pagination.Pagination{Cursor: *first.NextCursor, Limit: 2},
	})
	require.NoError(t, err)
	assert.Len(t, second.Vehicles, 1)
	assert.Nil(t, second.NextCursor)
	assert.Equal(t, vins[2], second.Vehicles[0].VIN)

	filtered, err := svc.List(ctx, domain.ListRequest{State: "available"})
	require.NoError(t, err)
	assert.Len(t, filtered.Vehicles, 3)

	_, err = svc.List(ctx, domain.ListRequest{State: "FLYING"})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
