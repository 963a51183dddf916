package main

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/audit"
	"github.com/karsada/fleetcore/internal/clock"
	"github.com/karsada/fleetcore/internal/config"
	"github.com/karsada/fleetcore/internal/events"
	"github.com/karsada/fleetcore/internal/observability"
	"github.com/karsada/fleetcore/internal/ratelimit"
	"github.com/karsada/fleetcore/internal/scheduler"
	"github.com/karsada/fleetcore/internal/telemetrypush"
	"github.com/karsada/fleetcore/pkg/db"
	"github.com/karsada/fleetcore/pkg/reference"
	"github.com/karsada/fleetcore/pkg/telemetry"
)

// Housekeeping process: idempotency purge, overdue invoices, outbox
// drain. No HTTP listener; metrics leave via the telemetry push loop.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		reference.Module,
		fx.Provide(telemetry.NewMetrics),

		events.Module,
		audit.Module,
		ratelimit.Module,

		scheduler.Module,
		telemetrypush.Module,
	)
	app.Run()
}
