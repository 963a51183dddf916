package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/karsada/fleetcore/internal/audit/domain"
	"github.com/karsada/fleetcore/internal/config"
	customerdomain "github.com/karsada/fleetcore/internal/customer/domain"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/idempotency"
	invoicedomain "github.com/karsada/fleetcore/internal/invoice/domain"
	ledgerdomain "github.com/karsada/fleetcore/internal/ledger/domain"
	maintenancedomain "github.com/karsada/fleetcore/internal/maintenance/domain"
	paymentdomain "github.com/karsada/fleetcore/internal/payment/domain"
	rentaldomain "github.com/karsada/fleetcore/internal/rental/domain"
	"github.com/karsada/fleetcore/internal/seed"
	userdomain "github.com/karsada/fleetcore/internal/user/domain"
	vehicledomain "github.com/karsada/fleetcore/internal/vehicle/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned SQL targets Postgres. Other dialects serve
			// local development, where the model schema without the
			// trigger layer is enough.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.Ensure(conn, cfg)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&vehicledomain.Vehicle{},
		&vehicledomain.OdometerReading{},
		&customerdomain.Customer{},
		&rentaldomain.Rental{},
		&rentaldomain.RentalPeriod{},
		&maintenancedomain.MaintenanceJob{},
		&maintenancedomain.MaintenancePart{},
		&ledgerdomain.Account{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.LedgerEntryLine{},
		&invoicedomain.Invoice{},
		&paymentdomain.PaymentMethod{},
		&paymentdomain.Payment{},
		&userdomain.User{},
		&userdomain.RefreshToken{},
		&idempotency.Key{},
		&events.OutboxEvent{},
		&events.InboxMessage{},
		&events.DLQMessage{},
		&auditdomain.AuditLog{},
	)
}
