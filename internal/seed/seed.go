package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/karsada/fleetcore/internal/auth/password"
	"github.com/karsada/fleetcore/internal/config"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
)

// Ensure seeds the reference data every deployment needs: the chart of
// accounts, the payment method catalog, and, when the bootstrap
// credentials are configured, the initial admin user. Safe to run on
// every startup.
func Ensure(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureChartOfAccounts(ctx, tx); err != nil {
			return err
		}
		if err := ensurePaymentMethods(ctx, tx); err != nil {
			return err
		}
		return ensureAdminUser(ctx, tx, cfg)
	})
}

func ensureChartOfAccounts(ctx context.Context, tx *gorm.DB) error {
	type account struct {
		Code string
		Name string
		Type ledgerdomain.AccountType
	}

	accounts := []account{
		{ledgerdomain.AccountCodeCash, "Cash", ledgerdomain.AccountTypeAsset},
		{ledgerdomain.AccountCodeAccountsReceivable, "Accounts Receivable", ledgerdomain.AccountTypeAsset},
		{ledgerdomain.AccountCodeFleetVehicles, "Fleet Vehicles", ledgerdomain.AccountTypeAsset},

		{ledgerdomain.AccountCodeAccountsPayable, "Accounts Payable", ledgerdomain.AccountTypeLiability},

		{ledgerdomain.AccountCodeOwnerEquity, "Owner Equity", ledgerdomain.AccountTypeEquity},

		{ledgerdomain.AccountCodeRentalRevenue, "Rental Revenue", ledgerdomain.AccountTypeRevenue},
		{ledgerdomain.AccountCodeLateFeeRevenue, "Late Fee Revenue", ledgerdomain.AccountTypeRevenue},

		{ledgerdomain.AccountCodeMaintenanceExpense, "Maintenance Expense", ledgerdomain.AccountTypeExpense},
	}

	now := time.Now().UTC()
	for _, a := range accounts {
		err := tx.WithContext(ctx).Exec(`
			INSERT INTO accounts (id, code, name, type, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (code) DO NOTHING
		`,
			uuid.New(),
			a.Code,
			a.Name,
			a.Type,
			true,
			now,
			now,
		).Error
		if err != nil {
			return err
		}
	}

	return nil
}

func ensurePaymentMethods(ctx context.Context, tx *gorm.DB) error {
	type method struct {
		Code        string
		DisplayName string
	}

	// Every tender lands in the cash account; separate e-wallet and bank
	// clearing accounts are a bookkeeping refinement left to the operator.
	methods := []method{
		{"CASH", "Cash"},
		{"GCASH", "GCash"},
		{"BANK_TRANSFER", "Bank Transfer"},
	}

	now := time.Now().UTC()
	for _, m := range methods {
		err := tx.WithContext(ctx).Exec(`
			INSERT INTO payment_methods (id, code, display_name, target_account_code, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (code) DO NOTHING
		`,
			uuid.New(),
			m.Code,
			m.DisplayName,
			ledgerdomain.AccountCodeCash,
			true,
			now,
			now,
		).Error
		if err != nil {
			return err
		}
	}

	return nil
}

// ensureAdminUser bootstraps the first admin from ADMIN_EMAIL and
// ADMIN_PASSWORD. Without both set no user is created; there is no
// built-in default credential.
func ensureAdminUser(ctx context.Context, tx *gorm.DB, cfg config.Config) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	var user userdomain.User
	err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user = userdomain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashed,
		FirstName:    "Fleet",
		LastName:     "Admin",
		Roles:        []string{userdomain.RoleAdmin},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return tx.WithContext(ctx).Create(&user).Error
}
