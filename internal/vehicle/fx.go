package vehicle

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/vehicle/repository"
	"github.com/karsada/fleetcore/internal/vehicle/service"
)

var Module = fx.Module("vehicle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
