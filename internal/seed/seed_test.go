package seed

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/auth/password"
	"github.com/karsada/fleetcore/internal/config"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
)

func newSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Account{},
		&paymentdomain.PaymentMethod{},
		&userdomain.User{},
	))
	return db
}

func TestEnsureSeedsChartAndMethods(t *testing.T) {
	db := newSeedDB(t)

	require.NoError(t, Ensure(db, config.Config{}))

	var accounts []ledgerdomain.Account
	require.NoError(t, db.Order("code asc").Find(&accounts).Error)
	require.Len(t, accounts, 8)
	assert.Equal(t, ledgerdomain.AccountCodeCash, accounts[0].Code)
	assert.Equal(t, "Cash", accounts[0].Name)
	assert.Equal(t, ledgerdomain.AccountTypeAsset, accounts[0].Type)
	assert.True(t, accounts[0].IsActive)
	assert.Equal(t, ledgerdomain.AccountCodeMaintenanceExpense, accounts[7].Code)
	assert.Equal(t, ledgerdomain.AccountTypeExpense, accounts[7].Type)

	var methods []paymentdomain.PaymentMethod
	require.NoError(t, db.Order("code asc").Find(&methods).Error)
	require.Len(t, methods, 3)
	for _, m := range methods {
		assert.Equal(t, ledgerdomain.AccountCodeCash, m.TargetAccountCode)
		assert.True(t, m.IsActive)
	}
	assert.Equal(t, "BANK_TRANSFER", methods[0].Code)
	assert.Equal(t, "CASH", methods[1].Code)
	assert.Equal(t, "GCASH", methods[2].Code)

	var users int64
	require.NoError(t, db.Model(&userdomain.User{}).Count(&users).Error)
	assert.Zero(t, users)
}

func TestEnsureIsIdempotent(t *testing.T) {
	db := newSeedDB(t)

	require.NoError(t, Ensure(db, config.Config{}))
	require.NoError(t, Ensure(db, config.Config{}))

	var accounts, methods int64
	require.NoError(t, db.Model(&ledgerdomain.Account{}).Count(&accounts).Error)
	require.NoError(t, db.Model(&paymentdomain.PaymentMethod{}).Count(&methods).Error)
	assert.EqualValues(t, 8, accounts)
	assert.EqualValues(t, 3, methods)
}

func TestEnsureBootstrapsAdminFromConfig(t *testing.T) {
	db := newSeedDB(t)
	cfg := config.Config{
		AdminEmail:    " Ops@Karsada.PH ",
		AdminPassword: "harabas-fleet-2026",
	}

	require.NoError(t, Ensure(db, cfg))

	var user userdomain.User
	require.NoError(t, db.Where("email = ?", "ops@karsada.ph").First(&user).Error)
	assert.True(t, user.HasRole(userdomain.RoleAdmin))
	assert.True(t, user.IsActive)
	assert.True(t, password.Verify("harabas-fleet-2026", user.PasswordHash))

	// A later run with different credentials must not rewrite the
	// existing admin.
	cfg.AdminPassword = "changed-since"
	require.NoError(t, Ensure(db, cfg))

	var users int64
	require.NoError(t, db.Model(&userdomain.User{}).Count(&users).Error)
	assert.EqualValues(t, 1, users)
	require.NoError(t, db.Where("email = ?", "ops@karsada.ph").First(&user).Error)
	assert.True(t, password.Verify("harabas-fleet-2026", user.PasswordHash))
}

func TestEnsureSkipsAdminWithoutCredentials(t *testing.T) {
	for name, cfg := range map[string]config.Config{
		"neither":       {},
		"email only":    {AdminEmail: "ops@karsada.ph"},
		"password only": {AdminPassword: "harabas-fleet-2026"},
	} {
		t.Run(name, func(t *testing.T) {
			db := newSeedDB(t)
			require.NoError(t, Ensure(db, cfg))

			var users int64
			require.NoError(t, db.Model(&userdomain.User{}).Count(&users).Error)
			assert.Zero(t, users)
		})
	}
}

func TestEnsureRequiresDatabase(t *testing.T) {
	assert.Error(t, Ensure(nil, config.Config{}))
}
