package rental

import (
	"go.uber.org/fx"

	"github.com/karsada/fleetcore/internal/rental/repository"
	"github.com/karsada/fleetcore/internal/rental/service"
)

var Module = fx.Module("rental.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
