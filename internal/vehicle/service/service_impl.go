package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/cache"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/db/pagination"
)

const (
	minYear = 1900
	maxYear = 2100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository

	Outbox   *events.Outbox
	Cache    *cache.VehicleCache `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	outbox   *events.Outbox
	cache    *cache.VehicleCache
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("vehicle.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		outbox:   p.Outbox,
		cache:    p.Cache,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Vehicle, error) {
	vin := strings.ToUpper(strings.TrimSpace(req.VIN))
	if len(vin) != 17 {
		return nil, domain.ErrInvalidVIN
	}

	plate := strings.ToUpper(strings.TrimSpace(req.Plate))
	if plate == "" {
		return nil, domain.ErrInvalidPlate
	}

	vehicleMake := strings.TrimSpace(req.Make)
	if vehicleMake == "" {
		return nil, domain.ErrInvalidMake
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, domain.ErrInvalidModel
	}

	if req.Year < minYear || req.Year > maxYear {
		return nil, domain.ErrInvalidYear
	}
	if req.MileageKm < 0 {
		return nil, domain.ErrInvalidMileage
	}
	if req.DailyRateAmount < 0 {
		return nil, domain.ErrInvalidDailyRate
	}
	if req.PassengerCapacity <= 0 {
		return nil, domain.ErrInvalidCapacity
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "PHP"
	}
	if currency != "PHP" {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	vehicle := &domain.Vehicle{
		ID:                uuid.New(),
		VIN:               vin,
		Plate:             plate,
		Make:              vehicleMake,
		Model:             model,
		Year:              req.Year,
		Color:             strings.TrimSpace(req.Color),
		State:             domain.StateAvailable,
		MileageKm:         req.MileageKm,
		DailyRateAmount:   req.DailyRateAmount,
		Currency:          currency,
		PassengerCapacity: req.PassengerCapacity,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, s.db, vehicle); err != nil {
		if db.IsDuplicateKeyErr(err) {
			if strings.Contains(strings.ToLower(err.Error()), "vin") {
				return nil, domain.ErrDuplicateVIN
			}
			return nil, domain.ErrDuplicatePlate
		}
		return nil, err
	}

	s.audit(ctx, "vehicle.created", vehicle.ID, map[string]any{
		"vin":   vehicle.VIN,
		"plate": vehicle.Plate,
		"make":  vehicle.Make,
		"model": vehicle.Model,
	})

	return vehicle, nil
}

// Get serves reads cache-aside: a hit skips the database entirely, a
// miss reads through and repopulates without blocking the response.
func (s *Service) Get(ctx context.Context, id string) (*domain.Vehicle, error) {
	vehicleID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(ctx, vehicleID.String()); ok {
		return cached, nil
	}

	vehicle, err := s.repo.FindByID(ctx, s.db, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, domain.ErrNotFound
	}

	s.cache.Set(ctx, vehicle)
	return vehicle, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{
		Make:  strings.TrimSpace(req.Make),
		Plate: strings.ToUpper(strings.TrimSpace(req.Plate)),
	}

	if state := strings.ToUpper(strings.TrimSpace(req.State)); state != "" {
		if !domain.State(state).IsValid() {
			return domain.ListResponse{}, domain.ErrInvalidState
		}
		filter.State = domain.State(state)
	}

	if token := strings.TrimSpace(req.Cursor); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := uuid.Parse(strings.TrimSpace(decoded.ID))
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	page := req.Pagination.Normalize()
	filter.Limit = page.Limit

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo, items := pagination.BuildCursorPageInfo(items, page.Limit, func(item *domain.Vehicle) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	vehicles := make([]domain.Vehicle, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		vehicles = append(vehicles, *item)
	}

	resp := domain.ListResponse{Vehicles: vehicles}
	if pageInfo != nil {
		pageInfo.Total = total
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Vehicle, error) {
	vehicleID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.Version <= 0 {
		return nil, domain.ErrMissingVersion
	}

	var updated *domain.Vehicle
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vehicle, err := s.repo.FindByID(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return domain.ErrNotFound
		}

		if req.Plate != nil {
			plate := strings.ToUpper(strings.TrimSpace(*req.Plate))
			if plate == "" {
				return domain.ErrInvalidPlate
			}
			vehicle.Plate = plate
		}
		if req.Make != nil {
			vehicleMake := strings.TrimSpace(*req.Make)
			if vehicleMake == "" {
				return domain.ErrInvalidMake
			}
			vehicle.Make = vehicleMake
		}
		if req.Model != nil {
			model := strings.TrimSpace(*req.Model)
			if model == "" {
				return domain.ErrInvalidModel
			}
			vehicle.Model = model
		}
		if req.Year != nil {
			if *req.Year < minYear || *req.Year > maxYear {
				return domain.ErrInvalidYear
			}
			vehicle.Year = *req.Year
		}
		if req.Color != nil {
			vehicle.Color = strings.TrimSpace(*req.Color)
		}
		if req.DailyRateAmount != nil {
			if *req.DailyRateAmount < 0 {
				return domain.ErrInvalidDailyRate
			}
			vehicle.DailyRateAmount = *req.DailyRateAmount
		}
		if req.PassengerCapacity != nil {
			if *req.PassengerCapacity <= 0 {
				return domain.ErrInvalidCapacity
			}
			vehicle.PassengerCapacity = *req.PassengerCapacity
		}

		vehicle.UpdatedAt = s.clock.Now()
		rows, err := s.repo.Update(ctx, tx, vehicle, req.Version)
		if err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicatePlate
			}
			return err
		}
		if rows == 0 {
			return domain.ErrVersionConflict
		}

		vehicle.Version = req.Version + 1
		updated = vehicle
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "vehicle.updated", updated.ID, map[string]any{
		"version": updated.Version,
	})

	return updated, nil
}

func (s *Service) ChangeState(ctx context.Context, id string, next domain.State) (*domain.Vehicle, error) {
	if !next.IsValid() {
		return nil, domain.ErrInvalidState
	}
	return s.transition(ctx, id, next, "vehicle.state_changed")
}

// Retire is terminal: a retired vehicle never rejoins the fleet.
func (s *Service) Retire(ctx context.Context, id string) (*domain.Vehicle, error) {
	return s.transition(ctx, id, domain.StateRetired, "vehicle.retired")
}

func (s *Service) transition(ctx context.Context, id string, next domain.State, action string) (*domain.Vehicle, error) {
	vehicleID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		updated *domain.Vehicle
		from    domain.State
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vehicle, err := s.repo.FindByID(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return domain.ErrNotFound
		}

		from = vehicle.State
		if err := vehicle.Transition(next); err != nil {
			return err
		}

		now := s.clock.Now()
		rows, err := s.repo.UpdateState(ctx, tx, vehicle.ID, from, next, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost a concurrent transition between the read and the
			// guarded update.
			return domain.ErrVersionConflict
		}

		vehicle.Version++
		vehicle.UpdatedAt = now
		updated = vehicle

		return s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateVehicle,
			AggregateID:   vehicle.ID.String(),
			Type:          events.EventVehicleStateChanged,
			Payload: map[string]any{
				"vehicle_id": vehicle.ID.String(),
				"from":       string(from),
				"to":         string(next),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, action, updated.ID, map[string]any{
		"from": string(from),
		"to":   string(next),
	})

	return updated, nil
}

func (s *Service) RecordOdometer(ctx context.Context, req domain.OdometerRequest) (*domain.OdometerReading, error) {
	vehicleID, err := parseID(req.VehicleID)
	if err != nil {
		return nil, err
	}
	if req.ReadingKm < 0 {
		return nil, domain.ErrInvalidMileage
	}

	source := req.Source
	if source == "" {
		source = domain.OdometerSourceManual
	}
	if source != domain.OdometerSourceManual && source != domain.OdometerSourceRentalCompletion {
		return nil, domain.ErrInvalidSource
	}

	recordedAt := s.clock.Now()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	reading := &domain.OdometerReading{
		ID:         uuid.New(),
		VehicleID:  vehicleID,
		ReadingKm:  req.ReadingKm,
		RecordedAt: recordedAt,
		Source:     source,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vehicle, err := s.repo.FindByID(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return domain.ErrNotFound
		}

		// The storage trigger is the authority; this pre-check gives
		// the same rejection on dialects without it.
		latest, err := s.repo.LatestOdometer(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if latest != nil && req.ReadingKm < latest.ReadingKm {
			return domain.ErrMileageDecreasing
		}
		if req.ReadingKm < vehicle.MileageKm {
			return domain.ErrMileageDecreasing
		}

		if err := s.repo.InsertOdometer(ctx, tx, reading); err != nil {
			if db.HasTriggerMessage(err, "odometer_decreasing") {
				return domain.ErrMileageDecreasing
			}
			return err
		}

		_, err = s.repo.RaiseMileage(ctx, tx, vehicleID, req.ReadingKm, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, "vehicle.odometer_recorded", vehicleID, map[string]any{
		"reading_km": req.ReadingKm,
		"source":     string(source),
	})

	return reading, nil
}

// UpdateLocation applies a telemetry ping last-write-wins; pings are too
// frequent to contend on the version column or to audit one by one.
func (s *Service) UpdateLocation(ctx context.Context, req domain.LocationRequest) (*domain.Vehicle, error) {
	vehicleID, err := parseID(req.VehicleID)
	if err != nil {
		return nil, err
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return nil, domain.ErrInvalidLocation
	}
	if req.RouteProgress != nil && (*req.RouteProgress < 0 || *req.RouteProgress > 1) {
		return nil, domain.ErrInvalidLocation
	}

	rows, err := s.repo.UpdateLocation(ctx, s.db, vehicleID, req.Lat, req.Lng, req.RouteProgress, req.BearingDeg, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}

	vehicle, err := s.repo.FindByID(ctx, s.db, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, domain.ErrNotFound
	}
	return vehicle, nil
}

func (s *Service) audit(ctx context.Context, action string, vehicleID uuid.UUID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := vehicleID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "vehicle", &targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || parsed == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return parsed, nil
}
