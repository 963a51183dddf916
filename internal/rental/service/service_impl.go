package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/clock"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/events"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/rental/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/db/pagination"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Ref          *reference.Generator
	Repo         domain.Repository
	VehicleRepo  vehicledomain.Repository
	CustomerRepo customerdomain.Repository
	LedgerSvc    ledgerdomain.Service
	Outbox       *events.Outbox
	Metrics      *telemetry.Metrics  `optional:"true"`
	AuditSvc     auditdomain.Service `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	ref          *reference.Generator
	repo         domain.Repository
	vehicleRepo  vehicledomain.Repository
	customerRepo customerdomain.Repository
	ledgerSvc    ledgerdomain.Service
	outbox       *events.Outbox
	metrics      *telemetry.Metrics
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("rental.service"),
		clock:        p.Clock,
		ref:          p.Ref,
		repo:         p.Repo,
		vehicleRepo:  p.VehicleRepo,
		customerRepo: p.CustomerRepo,
		ledgerSvc:    p.LedgerSvc,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Rental, error) {
	vehicleID, err := uuid.Parse(strings.TrimSpace(req.VehicleID))
	if err != nil || vehicleID == uuid.Nil {
		return nil, vehicledomain.ErrInvalidID
	}
	customerID, err := uuid.Parse(strings.TrimSpace(req.CustomerID))
	if err != nil || customerID == uuid.Nil {
		return nil, customerdomain.ErrInvalidID
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.EndDate.After(req.StartDate) {
		return nil, domain.ErrInvalidPeriod
	}

	now := s.clock.Now()
	var rental *domain.Rental
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vehicle, err := s.vehicleRepo.FindByID(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return vehicledomain.ErrNotFound
		}
		if vehicle.State != vehicledomain.StateAvailable {
			return vehicledomain.ErrNotAvailable
		}

		customer, err := s.customerRepo.FindByID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}
		if !customer.IsActive {
			return customerdomain.ErrInactive
		}
		if !customer.DriverLicenseExpiry.After(now) {
			return customerdomain.ErrLicenseExpired
		}

		// First-line check; the exclusion constraint stays the authority
		// when two creates race past it.
		overlapping, err := s.repo.CountOverlapping(ctx, tx, vehicleID, req.StartDate, req.EndDate)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			s.metrics.ObserveRentalConflict()
			return domain.ErrConflict
		}

		days := rentalDays(req.StartDate, req.EndDate)
		rental = &domain.Rental{
			ID:           uuid.New(),
			RentalNumber: s.ref.Rental(),
			CustomerID:   customerID,
			VehicleID:    vehicleID,
			Status:       domain.StatusReserved,
			StartDate:    req.StartDate.UTC(),
			EndDate:      req.EndDate.UTC(),
			DailyRate:    vehicle.DailyRateAmount,
			TotalAmount:  days * vehicle.DailyRateAmount,
			Currency:     vehicle.Currency,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Create(ctx, tx, rental); err != nil {
			return err
		}

		err = s.repo.InsertPeriod(ctx, tx, &domain.RentalPeriod{
			RentalID:  rental.ID,
			VehicleID: vehicleID,
			StartDate: rental.StartDate,
			EndDate:   rental.EndDate,
			Status:    domain.StatusReserved,
		})
		if err != nil {
			if db.IsExclusionErr(err) {
				s.metrics.ObserveRentalConflict()
				return domain.ErrConflict
			}
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateRental,
			AggregateID:   rental.ID.String(),
			Type:          events.EventRentalCreated,
			Payload: map[string]any{
				"rental_id":    rental.ID.String(),
				"vehicle_id":   vehicleID.String(),
				"customer_id":  customerID.String(),
				"total_amount": rental.TotalAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRentalTransition(string(domain.StatusReserved))
	s.audit(ctx, "rental.created", rental.ID.String(), map[string]any{
		"rental_number": rental.RentalNumber,
		"vehicle_id":    rental.VehicleID.String(),
		"customer_id":   rental.CustomerID.String(),
		"total_amount":  rental.TotalAmount,
	})
	return rental, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{}

	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		if !domain.Status(status).IsValid() {
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = domain.Status(status)
	}
	if raw := strings.TrimSpace(req.VehicleID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, vehicledomain.ErrInvalidID
		}
		filter.VehicleID = &id
	}
	if raw := strings.TrimSpace(req.CustomerID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return domain.ListResponse{}, customerdomain.ErrInvalidID
		}
		filter.CustomerID = &id
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

	pageInfo, items := pagination.BuildCursorPageInfo(items, page.Limit, func(item *domain.Rental) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	rentals := make([]domain.Rental, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rentals = append(rentals, *item)
	}

	resp := domain.ListResponse{Rentals: rentals}
	if pageInfo != nil {
		pageInfo.Total = total
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Rental, error) {
	rentalID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rental, err := s.repo.FindByID(ctx, s.db, rentalID)
	if err != nil {
		return nil, err
	}
	if rental == nil {
		return nil, domain.ErrNotFound
	}
	return rental, nil
}

func (s *Service) Activate(ctx context.Context, req domain.ActivateRequest) (*domain.Rental, error) {
	rentalID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.StartOdometerKm < 0 {
		return nil, domain.ErrInvalidOdometer
	}

	var rental *domain.Rental
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, rentalID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now()
		if err := loaded.Activate(now, req.StartOdometerKm); err != nil {
			return err
		}

		rows, err := s.repo.Activate(ctx, tx, rentalID, now, req.StartOdometerKm, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost a concurrent transition between the read and the
			// guarded update.
			return domain.ErrNotReserved
		}
		if err := s.repo.UpdatePeriodStatus(ctx, tx, rentalID, domain.StatusActive); err != nil {
			return err
		}

		rows, err = s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateAvailable, vehicledomain.StateRented, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return vehicledomain.ErrNotAvailable
		}

		if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
			ExternalReference: fmt.Sprintf("rental-%s-activation", rentalID),
			EntryDate:         now,
			Description:       fmt.Sprintf("Activation of rental %s", loaded.RentalNumber),
			Source:            "rental",
			Lines: []ledgerdomain.Line{
				ledgerdomain.Debit(ledgerdomain.AccountCodeAccountsReceivable, loaded.TotalAmount),
				ledgerdomain.Credit(ledgerdomain.AccountCodeRentalRevenue, loaded.TotalAmount),
			},
		}); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateRental,
			AggregateID:   rentalID.String(),
			Type:          events.EventRentalActivated,
			Payload: map[string]any{
				"rental_id":         rentalID.String(),
				"vehicle_id":        loaded.VehicleID.String(),
				"start_odometer_km": req.StartOdometerKm,
			},
		}); err != nil {
			return err
		}

		rental = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRentalTransition(string(domain.StatusActive))
	s.audit(ctx, "rental.activated", rental.ID.String(), map[string]any{
		"rental_number":     rental.RentalNumber,
		"start_odometer_km": req.StartOdometerKm,
	})
	return rental, nil
}

func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (*domain.Rental, error) {
	rentalID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.FinalMileage < 0 {
		return nil, domain.ErrInvalidFinalMileage
	}

	var rental *domain.Rental
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, rentalID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now()
		if err := loaded.Complete(now, req.FinalMileage); err != nil {
			return err
		}

		rows, err := s.repo.Complete(ctx, tx, rentalID, now, req.FinalMileage, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotActive
		}
		if err := s.repo.UpdatePeriodStatus(ctx, tx, rentalID, domain.StatusCompleted); err != nil {
			return err
		}

		rows, err = s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateRented, vehicledomain.StateAvailable, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return vehicledomain.ErrInvalidTransition
		}

		// Mirror of the storage trigger so the reading insert fails the
		// same way on every dialect.
		latest, err := s.vehicleRepo.LatestOdometer(ctx, tx, loaded.VehicleID)
		if err != nil {
			return err
		}
		if latest != nil && req.FinalMileage < latest.ReadingKm {
			return vehicledomain.ErrMileageDecreasing
		}

		err = s.vehicleRepo.InsertOdometer(ctx, tx, &vehicledomain.OdometerReading{
			ID:         uuid.New(),
			VehicleID:  loaded.VehicleID,
			ReadingKm:  req.FinalMileage,
			RecordedAt: now,
			Source:     vehicledomain.OdometerSourceRentalCompletion,
		})
		if err != nil {
			if db.HasTriggerMessage(err, "odometer_decreasing") {
				return vehicledomain.ErrMileageDecreasing
			}
			return err
		}

		if _, err := s.vehicleRepo.RaiseMileage(ctx, tx, loaded.VehicleID, req.FinalMileage, now); err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateRental,
			AggregateID:   rentalID.String(),
			Type:          events.EventRentalCompleted,
			Payload: map[string]any{
				"rental_id":       rentalID.String(),
				"vehicle_id":      loaded.VehicleID.String(),
				"end_odometer_km": req.FinalMileage,
			},
		}); err != nil {
			return err
		}

		rental = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRentalTransition(string(domain.StatusCompleted))
	s.audit(ctx, "rental.completed", rental.ID.String(), map[string]any{
		"rental_number":   rental.RentalNumber,
		"end_odometer_km": req.FinalMileage,
	})
	return rental, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Rental, error) {
	rentalID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var rental *domain.Rental
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, rentalID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		from := loaded.Status
		wasActive := from == domain.StatusActive
		if err := loaded.Cancel(); err != nil {
			return err
		}

		now := s.clock.Now()
		rows, err := s.repo.UpdateStatus(ctx, tx, rentalID, from, domain.StatusCancelled, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotCancellable
		}
		if err := s.repo.UpdatePeriodStatus(ctx, tx, rentalID, domain.StatusCancelled); err != nil {
			return err
		}

		if wasActive {
			rows, err = s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateRented, vehicledomain.StateAvailable, now)
			if err != nil {
				return err
			}
			if rows == 0 {
				return vehicledomain.ErrInvalidTransition
			}
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateRental,
			AggregateID:   rentalID.String(),
			Type:          events.EventRentalCancelled,
			Payload: map[string]any{
				"rental_id":  rentalID.String(),
				"vehicle_id": loaded.VehicleID.String(),
				"was_active": wasActive,
			},
		}); err != nil {
			return err
		}

		rental = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveRentalTransition(string(domain.StatusCancelled))
	s.audit(ctx, "rental.cancelled", rental.ID.String(), map[string]any{
		"rental_number": rental.RentalNumber,
	})
	return rental, nil
}

func (s *Service) audit(ctx context.Context, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "rental", &targetID, metadata); err != nil {
		s.log.Warn("failed to write rental audit log", zap.Error(err))
	}
}

// rentalDays bills any started day as a whole day.
func rentalDays(start, end time.Time) int64 {
	d := end.Sub(start)
	days := int64(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return id, nil
}
