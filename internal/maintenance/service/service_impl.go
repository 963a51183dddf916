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
	"github.com/karsada/fleetcore/internal/events"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	"github.com/karsada/fleetcore/internal/maintenance/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
	"github.com/karsada/fleetcore/pkg/db/pagination"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Ref         *reference.Generator
	Repo        domain.Repository
	VehicleRepo vehicledomain.Repository
	LedgerSvc   ledgerdomain.Service
	Outbox      *events.Outbox
	Metrics     *telemetry.Metrics  `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	ref         *reference.Generator
	repo        domain.Repository
	vehicleRepo vehicledomain.Repository
	ledgerSvc   ledgerdomain.Service
	outbox      *events.Outbox
	metrics     *telemetry.Metrics
	auditSvc    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("maintenance.service"),
		clock:       p.Clock,
		ref:         p.Ref,
		repo:        p.Repo,
		vehicleRepo: p.VehicleRepo,
		ledgerSvc:   p.LedgerSvc,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.MaintenanceJob, error) {
	vehicleID, err := uuid.Parse(strings.TrimSpace(req.VehicleID))
	if err != nil || vehicleID == uuid.Nil {
		return nil, vehicledomain.ErrInvalidID
	}

	jobType := domain.JobType(strings.ToUpper(strings.TrimSpace(req.Type)))
	if !jobType.IsValid() {
		return nil, domain.ErrInvalidType
	}
	priority := domain.PriorityMedium
	if raw := strings.ToUpper(strings.TrimSpace(req.Priority)); raw != "" {
		priority = domain.Priority(raw)
		if !priority.IsValid() {
			return nil, domain.ErrInvalidPriority
		}
	}
	if req.ScheduledDate.IsZero() {
		return nil, domain.ErrInvalidSchedule
	}

	now := s.clock.Now()
	var job *domain.MaintenanceJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vehicle, err := s.vehicleRepo.FindByID(ctx, tx, vehicleID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return vehicledomain.ErrNotFound
		}

		// Scheduling never touches the vehicle; only Start requires the
		// vehicle to be free at that instant.
		job = &domain.MaintenanceJob{
			ID:            uuid.New(),
			JobNumber:     s.ref.Maintenance(),
			VehicleID:     vehicleID,
			Status:        domain.StatusScheduled,
			Type:          jobType,
			Priority:      priority,
			ScheduledDate: req.ScheduledDate.UTC(),
			Notes:         strings.TrimSpace(req.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.repo.Create(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMaintenanceTransition(string(domain.StatusScheduled))
	s.audit(ctx, "maintenance.scheduled", job.ID.String(), map[string]any{
		"job_number": job.JobNumber,
		"vehicle_id": job.VehicleID.String(),
		"type":       string(job.Type),
		"priority":   string(job.Priority),
	})
	return job, nil
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

	pageInfo, items := pagination.BuildCursorPageInfo(items, page.Limit, func(item *domain.MaintenanceJob) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	jobs := make([]domain.MaintenanceJob, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		jobs = append(jobs, *item)
	}

	resp := domain.ListResponse{Jobs: jobs}
	if pageInfo != nil {
		pageInfo.Total = total
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.MaintenanceJob, error) {
	jobID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) Start(ctx context.Context, id string) (*domain.MaintenanceJob, error) {
	jobID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var job *domain.MaintenanceJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now()
		if err := loaded.Start(now); err != nil {
			return err
		}

		rows, err := s.repo.Start(ctx, tx, jobID, now, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotScheduled
		}

		// Starting claims the vehicle. Anything but AVAILABLE, a rented
		// vehicle included, rejects the transition.
		rows, err = s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateAvailable, vehicledomain.StateMaintenance, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return vehicledomain.ErrInvalidTransition
		}

		job = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMaintenanceTransition(string(domain.StatusInProgress))
	s.audit(ctx, "maintenance.started", job.ID.String(), map[string]any{
		"job_number": job.JobNumber,
		"vehicle_id": job.VehicleID.String(),
	})
	return job, nil
}

func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (*domain.MaintenanceJob, error) {
	jobID, err := parseID(req.ID)
	if err != nil {
		return nil, err
	}
	if req.LaborCost < 0 {
		return nil, domain.ErrInvalidLaborCost
	}

	var partsCost int64
	parts := make([]domain.MaintenancePart, 0, len(req.Parts))
	for _, input := range req.Parts {
		name := strings.TrimSpace(input.PartName)
		if name == "" || input.Quantity <= 0 || input.UnitCost < 0 {
			return nil, domain.ErrInvalidPart
		}
		parts = append(parts, domain.MaintenancePart{
			PartName: name,
			Quantity: input.Quantity,
			UnitCost: input.UnitCost,
		})
		partsCost += int64(input.Quantity) * input.UnitCost
	}

	var job *domain.MaintenanceJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now()
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			loaded.Notes = notes
		}
		if err := loaded.Complete(now, req.LaborCost, partsCost); err != nil {
			return err
		}

		rows, err := s.repo.Complete(ctx, tx, jobID, now, loaded.LaborCost, loaded.PartsCost, loaded.TotalCost, loaded.Notes, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotInProgress
		}

		for i := range parts {
			parts[i].ID = uuid.New()
			parts[i].JobID = jobID
			parts[i].CreatedAt = now
			if err := s.repo.InsertPart(ctx, tx, &parts[i]); err != nil {
				return err
			}
		}
		loaded.Parts = append(loaded.Parts, parts...)

		// The vehicle returns to AVAILABLE only if it is still in
		// MAINTENANCE; an administrative move elsewhere is left alone.
		if _, err := s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateMaintenance, vehicledomain.StateAvailable, now); err != nil {
			return err
		}

		if loaded.TotalCost > 0 {
			if _, err := s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostRequest{
				ExternalReference: fmt.Sprintf("maintenance-%s-close", jobID),
				EntryDate:         now,
				Description:       fmt.Sprintf("Maintenance close for job %s", loaded.JobNumber),
				Source:            "maintenance",
				Lines: []ledgerdomain.Line{
					ledgerdomain.Debit(ledgerdomain.AccountCodeMaintenanceExpense, loaded.TotalCost),
					ledgerdomain.Credit(ledgerdomain.AccountCodeAccountsPayable, loaded.TotalCost),
				},
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			AggregateType: events.AggregateMaintenance,
			AggregateID:   jobID.String(),
			Type:          events.EventMaintenanceCompleted,
			Payload: map[string]any{
				"job_id":     jobID.String(),
				"job_number": loaded.JobNumber,
				"vehicle_id": loaded.VehicleID.String(),
				"total_cost": loaded.TotalCost,
			},
		}); err != nil {
			return err
		}

		job = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMaintenanceTransition(string(domain.StatusCompleted))
	s.audit(ctx, "maintenance.completed", job.ID.String(), map[string]any{
		"job_number": job.JobNumber,
		"labor_cost": job.LaborCost,
		"parts_cost": job.PartsCost,
		"total_cost": job.TotalCost,
	})
	return job, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.MaintenanceJob, error) {
	jobID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var job *domain.MaintenanceJob
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.repo.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return domain.ErrNotFound
		}

		from := loaded.Status
		wasInProgress := from == domain.StatusInProgress
		if err := loaded.Cancel(); err != nil {
			return err
		}

		now := s.clock.Now()
		rows, err := s.repo.UpdateStatus(ctx, tx, jobID, from, domain.StatusCancelled, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrNotCancellable
		}

		if wasInProgress {
			// Same release rule as completion: only a vehicle still in
			// MAINTENANCE goes back to AVAILABLE.
			if _, err := s.vehicleRepo.UpdateState(ctx, tx, loaded.VehicleID, vehicledomain.StateMaintenance, vehicledomain.StateAvailable, now); err != nil {
				return err
			}
		}

		job = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMaintenanceTransition(string(domain.StatusCancelled))
	s.audit(ctx, "maintenance.cancelled", job.ID.String(), map[string]any{
		"job_number": job.JobNumber,
	})
	return job, nil
}

func (s *Service) audit(ctx context.Context, action, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "maintenance_job", &targetID, metadata); err != nil {
		s.log.Warn("failed to write maintenance audit log", zap.Error(err))
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, domain.ErrInvalidID
	}
	return id, nil
}
