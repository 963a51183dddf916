package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
)

//go:embed model.conf
var modelText string

const (
	ActorSystem     = "system"
	userActorPrefix = "user:"
	rolePrefix      = "role:"
)

// UserActor formats the actor string for a verified user principal.
func UserActor(id uuid.UUID) string {
	return userActorPrefix + id.String()
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, roles []string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, actorType, actorID, err := s.resolveActor(actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return err
	}

	roleNames := roleNamesFor(actorType, roles)
	if err := s.ensureGroupings(subject, roleNames); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(actor string) (string, string, *string, error) {
	if actor == ActorSystem {
		return actor, "system", nil, nil
	}
	if strings.HasPrefix(actor, userActorPrefix) {
		userIDRaw := strings.TrimPrefix(actor, userActorPrefix)
		userID, err := uuid.Parse(userIDRaw)
		if err != nil || userID == uuid.Nil {
			return "", "user", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		return actor, "user", &userIDStr, nil
	}
	return "", "", nil, ErrInvalidActor
}

// roleNamesFor maps token roles onto casbin role subjects. The system
// actor always carries role:system regardless of input.
func roleNamesFor(actorType string, roles []string) []string {
	if actorType == "system" {
		return []string{rolePrefix + "system"}
	}
	names := make([]string, 0, len(roles))
	seen := map[string]struct{}{}
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" || role == "system" {
			continue
		}
		name := rolePrefix + role
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ensureGroupings reconciles the subject's grouping rows with the roles
// on the verified token, dropping stale grants.
func (s *ServiceImpl) ensureGroupings(subject string, roleNames []string) error {
	wanted := make(map[string]struct{}, len(roleNames))
	for _, name := range roleNames {
		wanted[name] = struct{}{}
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if _, ok := wanted[rule[1]]; ok {
			delete(wanted, rule[1])
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	for name := range wanted {
		if _, err := s.enforcer.AddGroupingPolicy(subject, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return ActorSystem
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

// shouldAuditGrant marks the actions worth a positive audit trail entry,
// not just denials.
func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoicePay, ActionVehicleDelete, ActionPaymentMethodManage:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// ADMIN holds every grant.
		{"role:admin", ObjectVehicle, ActionVehicleView},
		{"role:admin", ObjectVehicle, ActionVehicleCreate},
		{"role:admin", ObjectVehicle, ActionVehicleUpdate},
		{"role:admin", ObjectVehicle, ActionVehicleDelete},
		{"role:admin", ObjectVehicle, ActionVehicleStateUpdate},
		{"role:admin", ObjectVehicle, ActionVehicleOdometerAppend},
		{"role:admin", ObjectVehicle, ActionVehicleLocationUpdate},
		{"role:admin", ObjectCustomer, ActionCustomerView},
		{"role:admin", ObjectCustomer, ActionCustomerCreate},
		{"role:admin", ObjectCustomer, ActionCustomerUpdate},
		{"role:admin", ObjectRental, ActionRentalView},
		{"role:admin", ObjectRental, ActionRentalCreate},
		{"role:admin", ObjectRental, ActionRentalActivate},
		{"role:admin", ObjectRental, ActionRentalComplete},
		{"role:admin", ObjectRental, ActionRentalCancel},
		{"role:admin", ObjectMaintenance, ActionMaintenanceView},
		{"role:admin", ObjectMaintenance, ActionMaintenanceCreate},
		{"role:admin", ObjectMaintenance, ActionMaintenanceStart},
		{"role:admin", ObjectMaintenance, ActionMaintenanceComplete},
		{"role:admin", ObjectMaintenance, ActionMaintenanceCancel},
		{"role:admin", ObjectAccount, ActionAccountView},
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceCreate},
		{"role:admin", ObjectInvoice, ActionInvoiceIssue},
		{"role:admin", ObjectInvoice, ActionInvoiceCancel},
		{"role:admin", ObjectInvoice, ActionInvoicePay},
		{"role:admin", ObjectPaymentMethod, ActionPaymentMethodView},
		{"role:admin", ObjectPaymentMethod, ActionPaymentMethodManage},
		{"role:admin", ObjectReport, ActionReportView},
		{"role:admin", ObjectReport, ActionReconciliationRun},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// FLEET_MANAGER runs the fleet and its bookings.
		{"role:fleet_manager", ObjectVehicle, ActionVehicleView},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleCreate},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleUpdate},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleDelete},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleStateUpdate},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleOdometerAppend},
		{"role:fleet_manager", ObjectVehicle, ActionVehicleLocationUpdate},
		{"role:fleet_manager", ObjectCustomer, ActionCustomerView},
		{"role:fleet_manager", ObjectCustomer, ActionCustomerCreate},
		{"role:fleet_manager", ObjectCustomer, ActionCustomerUpdate},
		{"role:fleet_manager", ObjectRental, ActionRentalView},
		{"role:fleet_manager", ObjectRental, ActionRentalCreate},
		{"role:fleet_manager", ObjectRental, ActionRentalActivate},
		{"role:fleet_manager", ObjectRental, ActionRentalComplete},
		{"role:fleet_manager", ObjectRental, ActionRentalCancel},
		{"role:fleet_manager", ObjectMaintenance, ActionMaintenanceView},
		{"role:fleet_manager", ObjectMaintenance, ActionMaintenanceCreate},
		{"role:fleet_manager", ObjectMaintenance, ActionMaintenanceStart},
		{"role:fleet_manager", ObjectMaintenance, ActionMaintenanceComplete},
		{"role:fleet_manager", ObjectMaintenance, ActionMaintenanceCancel},

		// RENTAL_AGENT handles counter work: customers and rental handovers.
		{"role:rental_agent", ObjectVehicle, ActionVehicleView},
		{"role:rental_agent", ObjectVehicle, ActionVehicleLocationUpdate},
		{"role:rental_agent", ObjectCustomer, ActionCustomerView},
		{"role:rental_agent", ObjectCustomer, ActionCustomerCreate},
		{"role:rental_agent", ObjectCustomer, ActionCustomerUpdate},
		{"role:rental_agent", ObjectRental, ActionRentalView},
		{"role:rental_agent", ObjectRental, ActionRentalCreate},
		{"role:rental_agent", ObjectRental, ActionRentalActivate},
		{"role:rental_agent", ObjectRental, ActionRentalComplete},
		{"role:rental_agent", ObjectRental, ActionRentalCancel},

		// FINANCE_OWNER covers accounting, invoices and reports.
		{"role:finance_owner", ObjectVehicle, ActionVehicleView},
		{"role:finance_owner", ObjectRental, ActionRentalView},
		{"role:finance_owner", ObjectAccount, ActionAccountView},
		{"role:finance_owner", ObjectInvoice, ActionInvoiceView},
		{"role:finance_owner", ObjectInvoice, ActionInvoiceCreate},
		{"role:finance_owner", ObjectInvoice, ActionInvoiceIssue},
		{"role:finance_owner", ObjectInvoice, ActionInvoiceCancel},
		{"role:finance_owner", ObjectInvoice, ActionInvoicePay},
		{"role:finance_owner", ObjectPaymentMethod, ActionPaymentMethodView},
		{"role:finance_owner", ObjectPaymentMethod, ActionPaymentMethodManage},
		{"role:finance_owner", ObjectReport, ActionReportView},
		{"role:finance_owner", ObjectReport, ActionReconciliationRun},

		// CUSTOMER sees vehicles and their own rentals.
		{"role:customer", ObjectVehicle, ActionVehicleView},
		{"role:customer", ObjectRental, ActionRentalView},
		{"role:customer", ObjectRental, ActionRentalCreate},

		// System actor: scheduler jobs and seeds.
		{"role:system", ObjectVehicle, ActionVehicleView},
		{"role:system", ObjectVehicle, ActionVehicleStateUpdate},
		{"role:system", ObjectRental, ActionRentalView},
		{"role:system", ObjectRental, ActionRentalComplete},
		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoiceCreate},
		{"role:system", ObjectAccount, ActionAccountView},
		{"role:system", ObjectReport, ActionReconciliationRun},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
