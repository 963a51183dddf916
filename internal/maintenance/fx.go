package maintenance

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/maintenance/repository"
	"github.com/karsada/fleetcore/internal/maintenance/service"
)

var Module = fx.Module("maintenance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
