package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the maintenance job lifecycle state.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobType classifies why the vehicle is in the shop.
type JobType string

const (
	TypeRoutine    JobType = "ROUTINE"
	TypeRepair     JobType = "REPAIR"
	TypeInspection JobType = "INSPECTION"
	TypeRecall     JobType = "RECALL"
	TypeEmergency  JobType = "EMERGENCY"
)

func (t JobType) IsValid() bool {
	switch t {
	case TypeRoutine, TypeRepair, TypeInspection, TypeRecall, TypeEmergency:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// MaintenanceJob is one shop visit for a vehicle. Costs land at
// completion: partsCost sums the part lines and totalCost is always
// laborCost plus partsCost, never accepted from a caller.
type MaintenanceJob struct {
	ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	JobNumber     string            `gorm:"type:varchar(40);not null;uniqueIndex:ux_maintenance_jobs_number" json:"jobNumber"`
	VehicleID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"vehicleId"`
	Status        Status            `gorm:"type:varchar(20);not null;index" json:"status"`
	Type          JobType           `gorm:"type:varchar(20);not null" json:"type"`
	Priority      Priority          `gorm:"type:varchar(10);not null;default:'MEDIUM'" json:"priority"`
	ScheduledDate time.Time         `gorm:"not null" json:"scheduledDate"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	LaborCost     int64             `gorm:"not null;default:0" json:"laborCost"`
	PartsCost     int64             `gorm:"not null;default:0" json:"partsCost"`
	TotalCost     int64             `gorm:"not null;default:0" json:"totalCost"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	Parts         []MaintenancePart `gorm:"foreignKey:JobID" json:"parts"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

func (MaintenanceJob) TableName() string { return "maintenance_jobs" }

// MaintenancePart is one part line booked against a job at completion.
type MaintenancePart struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     uuid.UUID `gorm:"type:uuid;not null;index" json:"jobId"`
	PartName  string    `gorm:"type:varchar(120);not null" json:"partName"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	UnitCost  int64     `gorm:"not null" json:"unitCost"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"createdAt"`
}

func (MaintenancePart) TableName() string { return "maintenance_parts" }

// Start moves a scheduled job into the shop. A job cannot start before
// its scheduled date.
func (j *MaintenanceJob) Start(at time.Time) error {
	if j.Status != StatusScheduled {
		return ErrNotScheduled
	}
	if at.Before(j.ScheduledDate) {
		return ErrNotDue
	}
	j.Status = StatusInProgress
	j.StartedAt = &at
	return nil
}

// Complete closes an in-progress job and freezes its costs.
func (j *MaintenanceJob) Complete(at time.Time, laborCost, partsCost int64) error {
	if j.Status != StatusInProgress {
		return ErrNotInProgress
	}
	j.Status = StatusCompleted
	j.CompletedAt = &at
	j.LaborCost = laborCost
	j.PartsCost = partsCost
	j.TotalCost = laborCost + partsCost
	return nil
}

// Cancel drops a job that has not finished.
func (j *MaintenanceJob) Cancel() error {
	if j.Status != StatusScheduled && j.Status != StatusInProgress {
		return ErrNotCancellable
	}
	j.Status = StatusCancelled
	return nil
}
