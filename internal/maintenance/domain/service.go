package domain

import (
	"context"
	"errors"
	"time"

	"github.com/karsada/fleetcore/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*MaintenanceJob, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*MaintenanceJob, error)
	Start(ctx context.Context, id string) (*MaintenanceJob, error)
	Complete(ctx context.Context, req CompleteRequest) (*MaintenanceJob, error)
	Cancel(ctx context.Context, id string) (*MaintenanceJob, error)
}

type CreateRequest struct {
	VehicleID     string    `json:"vehicleId"`
	Type          string    `json:"type"`
	Priority      string    `json:"priority"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Notes         string    `json:"notes"`
}

type ListRequest struct {
	pagination.Pagination

	Status    string `form:"status"`
	VehicleID string `form:"vehicleId"`
}

type ListResponse struct {
	pagination.PageInfo

	Jobs []MaintenanceJob `json:"items"`
}

type CompleteRequest struct {
	ID        string      `json:"-"`
	LaborCost int64       `json:"laborCost"`
	Parts     []PartInput `json:"parts"`
	Notes     string      `json:"notes"`
}

type PartInput struct {
	PartName string `json:"partName"`
	Quantity int    `json:"quantity"`
	UnitCost int64  `json:"unitCost"`
}

var (
	ErrInvalidID        = errors.New("invalid_maintenance_job_id")
	ErrNotFound         = errors.New("maintenance_job_not_found")
	ErrInvalidType      = errors.New("invalid_maintenance_type")
	ErrInvalidPriority  = errors.New("invalid_maintenance_priority")
	ErrInvalidSchedule  = errors.New("invalid_maintenance_schedule")
	ErrInvalidStatus    = errors.New("invalid_maintenance_status")
	ErrInvalidLaborCost = errors.New("invalid_labor_cost")
	ErrInvalidPart      = errors.New("invalid_maintenance_part")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrNotScheduled     = errors.New("maintenance_job_not_scheduled")
	ErrNotDue           = errors.New("maintenance_job_not_due")
	ErrNotInProgress    = errors.New("maintenance_job_not_in_progress")
	ErrNotCancellable   = errors.New("maintenance_job_not_cancellable")
)
