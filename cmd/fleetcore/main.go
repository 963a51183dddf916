package main

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/audit"
	"github.com/karsada/fleetcore/internal/auth"
	"github.com/karsada/fleetcore/internal/authorization"
	"github.com/karsada/fleetcore/internal/cache"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/customer"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/idempotency"
	"github.com/karsada/fleetcore/internal/invoice"
	"github.com/karsada/fleetcore/internal/ledger"
	"github.com/karsada/fleetcore/internal/maintenance"
	"github.com/karsada/fleetcore/internal/migration"
	"github.com/karsada/fleetcore/internal/observability"
	"github.com/karsada/fleetcore/internal/payment"
	"github.com/karsada/fleetcore/internal/providers"
	"github.com/karsada/fleetcore/internal/ratelimit"
	"github.com/karsada/fleetcore/internal/rental"
	"github.com/karsada/fleetcore/internal/scheduler"
	"github.com/karsada/fleetcore/internal/server"
	"github.com/karsada/fleetcore/internal/telemetrypush"
	"github.com/karsada/fleetcore/internal/user"
	"github.com/karsada/fleetcore/internal/vehicle"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

// The monolith: API, housekeeping scheduler, migrations and seed data in
// one process. The split deployments live under apps/.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		migration.Module,
		reference.Module,
		fx.Provide(telemetry.NewMetrics),

		events.Module,
		cache.Module,
		auth.Module,
		authorization.Module,
		audit.Module,
		idempotency.Module,
		ratelimit.Module,
		providers.Module,

		ledger.Module,
		vehicle.Module,
		customer.Module,
		rental.Module,
		maintenance.Module,
		payment.Module,
		invoice.Module,
		user.Module,

		server.Module,
		scheduler.Module,
		telemetrypush.Module,
	)
	app.Run()
}
