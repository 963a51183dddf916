package authorization

import (
	"context"
	"errors"
)

// Objects guarded by the RBAC layer.
const (
	ObjectVehicle       = "vehicle"
	ObjectCustomer      = "customer"
	ObjectRental        = "rental"
	ObjectMaintenance   = "maintenance_job"
	ObjectAccount       = "account"
	ObjectInvoice       = "invoice"
	ObjectPaymentMethod = "payment_method"
	ObjectReport        = "report"
	ObjectAuditLog      = "audit_log"
)

// Actions follow <object>.<verb>.
const (
	ActionVehicleView           = "vehicle.view"
	ActionVehicleCreate         = "vehicle.create"
	ActionVehicleUpdate         = "vehicle.update"
	ActionVehicleDelete         = "vehicle.delete"
	ActionVehicleStateUpdate    = "vehicle.state_update"
	ActionVehicleOdometerAppend = "vehicle.odometer_append"
	ActionVehicleLocationUpdate = "vehicle.location_update"

	ActionCustomerView   = "customer.view"
	ActionCustomerCreate = "customer.create"
	ActionCustomerUpdate = "customer.update"

	ActionRentalView     = "rental.view"
	ActionRentalCreate   = "rental.create"
	ActionRentalActivate = "rental.activate"
	ActionRentalComplete = "rental.complete"
	ActionRentalCancel   = "rental.cancel"

	ActionMaintenanceView     = "maintenance_job.view"
	ActionMaintenanceCreate   = "maintenance_job.create"
	ActionMaintenanceStart    = "maintenance_job.start"
	ActionMaintenanceComplete = "maintenance_job.complete"
	ActionMaintenanceCancel   = "maintenance_job.cancel"

	ActionAccountView = "account.view"

	ActionInvoiceView   = "invoice.view"
	ActionInvoiceCreate = "invoice.create"
	ActionInvoiceIssue  = "invoice.issue"
	ActionInvoiceCancel = "invoice.cancel"
	ActionInvoicePay    = "invoice.pay"

	ActionPaymentMethodView   = "payment_method.view"
	ActionPaymentMethodManage = "payment_method.manage"

	ActionReportView        = "report.view"
	ActionReconciliationRun = "report.reconcile"

	ActionAuditLogView = "audit_log.view"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service answers whether an actor may perform an action on an object.
// Actors are "system" or "user:<id>"; user roles come from the verified
// token.
type Service interface {
	Authorize(ctx context.Context, actor string, roles []string, object string, action string) error
}
