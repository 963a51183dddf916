package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAuthzService(t *testing.T) Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	return NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})
}

func TestAuthorizeRoleGrants(t *testing.T) {
	svc := newAuthzService(t)
	ctx := context.Background()
	actor := "user:" + uuid.NewString()

	require.NoError(t, svc.Authorize(ctx, actor, []string{"ADMIN"}, ObjectVehicle, ActionVehicleCreate))
	require.NoError(t, svc.Authorize(ctx, actor, []string{"ADMIN"}, ObjectInvoice, ActionInvoicePay))

	agent := "user:" + uuid.NewString()
	require.NoError(t, svc.Authorize(ctx, agent, []string{"RENTAL_AGENT"}, ObjectRental, ActionRentalActivate))
	assert.ErrorIs(t,
		svc.Authorize(ctx, agent, []string{"RENTAL_AGENT"}, ObjectVehicle, ActionVehicleCreate),
		ErrForbidden)

	customer := "user:" + uuid.NewString()
	require.NoError(t, svc.Authorize(ctx, customer, []string{"CUSTOMER"}, ObjectRental, ActionRentalCreate))
	assert.ErrorIs(t,
		svc.Authorize(ctx, customer, []string{"CUSTOMER"}, ObjectCustomer, ActionCustomerView),
		ErrForbidden)
}

func TestAuthorizeSystemActor(t *testing.T) {
	svc := newAuthzService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, ActorSystem, nil, ObjectInvoice, ActionInvoiceCreate))
	require.NoError(t, svc.Authorize(ctx, ActorSystem, nil, ObjectVehicle, ActionVehicleStateUpdate))
	assert.ErrorIs(t,
		svc.Authorize(ctx, ActorSystem, nil, ObjectPaymentMethod, ActionPaymentMethodManage),
		ErrForbidden)
}

func TestAuthorizeDropsStaleRoles(t *testing.T) {
	svc := newAuthzService(t)
	ctx := context.Background()
	actor := "user:" + uuid.NewString()

	require.NoError(t, svc.Authorize(ctx, actor, []string{"FLEET_MANAGER"}, ObjectVehicle, ActionVehicleCreate))

	// Token now only carries CUSTOMER; the old grant must not linger.
	assert.ErrorIs(t,
		svc.Authorize(ctx, actor, []string{"CUSTOMER"}, ObjectVehicle, ActionVehicleCreate),
		ErrForbidden)
}

func TestAuthorizeRejectsMalformedInput(t *testing.T) {
	svc := newAuthzService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", nil, ObjectVehicle, ActionVehicleView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:not-a-uuid", nil, ObjectVehicle, ActionVehicleView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "robot:1", nil, ObjectVehicle, ActionVehicleView), ErrInvalidActor)

	actor := "user:" + uuid.NewString()
	assert.ErrorIs(t, svc.Authorize(ctx, actor, []string{"ADMIN"}, "", ActionVehicleView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, actor, []string{"ADMIN"}, ObjectVehicle, ""), ErrInvalidAction)
}
